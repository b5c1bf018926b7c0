// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package causal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanDifferenceModel(t *testing.T) {
	t.Run("unbuilt model refuses estimates", func(t *testing.T) {
		m := NewMeanDifferenceModel()
		_, err := m.EstimateEffect()
		assert.ErrorIs(t, err, ErrModelNotBuilt)
	})

	t.Run("estimates treated minus control mean", func(t *testing.T) {
		m := NewMeanDifferenceModel()

		rows := make([]EffectRow, 0, 20)
		for i := 0; i < 10; i++ {
			rows = append(rows, EffectRow{Treatment: true, Outcome: 300})
			rows = append(rows, EffectRow{Treatment: false, Outcome: 100})
		}
		require.NoError(t, m.Build(rows))

		effect, err := m.EstimateEffect()
		require.NoError(t, err)
		assert.InDelta(t, 200.0, effect, 1e-9)
	})

	t.Run("rejects tiny datasets", func(t *testing.T) {
		m := NewMeanDifferenceModel()
		err := m.Build([]EffectRow{{Treatment: true, Outcome: 1}})
		assert.ErrorIs(t, err, ErrInsufficientData)
	})

	t.Run("rejects single-arm datasets", func(t *testing.T) {
		m := NewMeanDifferenceModel()
		rows := make([]EffectRow, 15)
		for i := range rows {
			rows[i] = EffectRow{Treatment: true, Outcome: float64(i)}
		}
		assert.ErrorIs(t, m.Build(rows), ErrInsufficientData)
	})

	t.Run("failed rebuild keeps prior fit", func(t *testing.T) {
		m := NewMeanDifferenceModel()

		rows := make([]EffectRow, 0, 20)
		for i := 0; i < 10; i++ {
			rows = append(rows, EffectRow{Treatment: true, Outcome: 50})
			rows = append(rows, EffectRow{Treatment: false, Outcome: 10})
		}
		require.NoError(t, m.Build(rows))

		assert.Error(t, m.Build(nil))

		effect, err := m.EstimateEffect()
		require.NoError(t, err)
		assert.InDelta(t, 40.0, effect, 1e-9)
	})
}

func TestChainForService(t *testing.T) {
	tests := []struct {
		name      string
		service   string
		wantFirst string
	}{
		{"database name", "payment-db", "db_lock_contention"},
		{"postgres name", "orders-postgres", "db_lock_contention"},
		{"cache name", "redis-cache", "cache_miss_spike"},
		{"gateway name", "api-gateway", "ingress_load_spike"},
		{"generic name", "notification-svc", "notification-svc_degradation"},
		{"case insensitive", "Payment-DB", "db_lock_contention"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := ChainForService(tt.service)
			require.NotEmpty(t, chain.Steps)
			assert.Equal(t, tt.wantFirst, chain.Steps[0])
			assert.Contains(t, chain.Narrative, " -> ")
		})
	}
}
