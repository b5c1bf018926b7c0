// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sentinel

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSentinel/services/causal"
)

func TestGraphPruner_RemovesAgedObservations(t *testing.T) {
	graph := causal.NewTemporalGraph(causal.DefaultGraphConfig())
	require.NoError(t, graph.AddObservation("payment-db", "user-service", causal.Observation{
		Timestamp: time.Now().UTC().Add(-2 * time.Hour),
		LatencyMs: 120,
	}))
	require.NoError(t, graph.AddObservation("payment-db", "user-service", causal.Observation{
		Timestamp: time.Now().UTC(),
		LatencyMs: 80,
	}))

	pruner := newGraphPruner(graph, 10*time.Millisecond, time.Hour, slog.Default())
	pruner.Start(context.Background())
	defer pruner.Stop()

	assert.Eventually(t, func() bool {
		return graph.Stats().Observations == 1
	}, time.Second, 10*time.Millisecond, "stale observation should be pruned")
}

func TestGraphPruner_StopIsIdempotent(t *testing.T) {
	graph := causal.NewTemporalGraph(causal.DefaultGraphConfig())
	pruner := newGraphPruner(graph, time.Hour, time.Hour, slog.Default())
	pruner.Start(context.Background())

	pruner.Stop()
	pruner.Stop()
}

func TestGraphPruner_StopWithoutStartReturns(t *testing.T) {
	graph := causal.NewTemporalGraph(causal.DefaultGraphConfig())
	pruner := newGraphPruner(graph, time.Hour, time.Hour, slog.Default())

	done := make(chan struct{})
	go func() {
		pruner.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a pruner that was never started")
	}
}
