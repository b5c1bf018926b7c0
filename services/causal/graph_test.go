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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func obsAt(offset time.Duration, latency float64) Observation {
	return Observation{Timestamp: testEpoch.Add(offset), LatencyMs: latency}
}

func TestTemporalGraph_AddObservation(t *testing.T) {
	t.Run("rejects blank service ids", func(t *testing.T) {
		g := NewTemporalGraph(DefaultGraphConfig())

		err := g.AddObservation("", "payment-db", obsAt(0, 10))
		assert.ErrorIs(t, err, ErrEmptyService)

		err = g.AddObservation("api-gateway", "", obsAt(0, 10))
		assert.ErrorIs(t, err, ErrEmptyService)
	})

	t.Run("creates nodes and edges on first observation", func(t *testing.T) {
		g := NewTemporalGraph(DefaultGraphConfig())
		require.NoError(t, g.AddObservation("user-service", "payment-db", obsAt(0, 42)))

		stats := g.Stats()
		assert.Equal(t, 2, stats.Nodes)
		assert.Equal(t, 1, stats.Edges)
		assert.Equal(t, 1, stats.Observations)
		assert.Equal(t, 1, stats.IndexSize)
		assert.True(t, stats.IndexSorted)
	})

	t.Run("caches resource snapshot on source node", func(t *testing.T) {
		g := NewTemporalGraph(DefaultGraphConfig())
		obs := obsAt(0, 10)
		obs.CPUFrom = 87.5
		obs.MemFrom = 61.0
		obs.HasResources = true
		require.NoError(t, g.AddObservation("user-service", "payment-db", obs))

		node, ok := g.ServiceState("user-service")
		require.True(t, ok)
		assert.Equal(t, 87.5, node.CurrentCPU)
		assert.Equal(t, 61.0, node.CurrentMemory)
		assert.Equal(t, obs.Timestamp, node.LastUpdated)

		// The target reported nothing; snapshot stays zero.
		target, ok := g.ServiceState("payment-db")
		require.True(t, ok)
		assert.Zero(t, target.CurrentCPU)
	})

	t.Run("edge ring caps at configured capacity", func(t *testing.T) {
		cfg := DefaultGraphConfig()
		cfg.EdgeCapacity = 5
		g := NewTemporalGraph(cfg)

		for i := 0; i < 12; i++ {
			require.NoError(t, g.AddObservation("a", "b", obsAt(time.Duration(i)*time.Second, float64(i))))
		}

		assert.Equal(t, 5, g.Stats().Observations)

		// Oldest entries are the ones missing.
		neighbors, err := g.GetCausalNeighbors("b", time.Hour, testEpoch.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, neighbors["a"], 5)
		assert.Equal(t, 7.0, neighbors["a"][0].LatencyMs)
		assert.Equal(t, 11.0, neighbors["a"][4].LatencyMs)
	})

	t.Run("global index caps at max entries", func(t *testing.T) {
		cfg := DefaultGraphConfig()
		cfg.MaxIndexEntries = 10
		g := NewTemporalGraph(cfg)

		for i := 0; i < 25; i++ {
			require.NoError(t, g.AddObservation("a", "b", obsAt(time.Duration(i)*time.Second, float64(i))))
		}

		assert.Equal(t, 10, g.Stats().IndexSize)
	})
}

func TestTemporalGraph_GetCausalNeighbors(t *testing.T) {
	t.Run("returns exactly the in-window observations", func(t *testing.T) {
		g := NewTemporalGraph(DefaultGraphConfig())
		for i := 0; i < 10; i++ {
			require.NoError(t, g.AddObservation("api-gateway", "user-service",
				obsAt(time.Duration(i)*time.Minute, float64(i))))
		}

		now := testEpoch.Add(9 * time.Minute)
		neighbors, err := g.GetCausalNeighbors("user-service", 3*time.Minute, now)
		require.NoError(t, err)

		require.Len(t, neighbors["api-gateway"], 4) // minutes 6..9 inclusive
		for _, obs := range neighbors["api-gateway"] {
			assert.False(t, obs.Timestamp.Before(now.Add(-3*time.Minute)))
			assert.False(t, obs.Timestamp.After(now))
		}
		assert.Equal(t, 6.0, neighbors["api-gateway"][0].LatencyMs)
	})

	t.Run("groups by upstream service", func(t *testing.T) {
		g := NewTemporalGraph(DefaultGraphConfig())
		require.NoError(t, g.AddObservation("api-gateway", "payment-db", obsAt(0, 1)))
		require.NoError(t, g.AddObservation("user-service", "payment-db", obsAt(time.Second, 2)))
		require.NoError(t, g.AddObservation("api-gateway", "payment-db", obsAt(2*time.Second, 3)))
		require.NoError(t, g.AddObservation("payment-db", "notification-svc", obsAt(3*time.Second, 4)))

		neighbors, err := g.GetCausalNeighbors("payment-db", time.Hour, testEpoch.Add(time.Minute))
		require.NoError(t, err)

		assert.Len(t, neighbors, 2)
		assert.Len(t, neighbors["api-gateway"], 2)
		assert.Len(t, neighbors["user-service"], 1)
	})

	t.Run("empty graph yields empty map", func(t *testing.T) {
		g := NewTemporalGraph(DefaultGraphConfig())
		neighbors, err := g.GetCausalNeighbors("ghost", time.Minute, testEpoch)
		require.NoError(t, err)
		assert.Empty(t, neighbors)
	})

	t.Run("validates arguments", func(t *testing.T) {
		g := NewTemporalGraph(DefaultGraphConfig())

		_, err := g.GetCausalNeighbors("", time.Minute, testEpoch)
		assert.ErrorIs(t, err, ErrEmptyService)

		_, err = g.GetCausalNeighbors("svc", 0, testEpoch)
		assert.ErrorIs(t, err, ErrNegativeWindow)
	})

	t.Run("out-of-order submission still answers correctly", func(t *testing.T) {
		g := NewTemporalGraph(DefaultGraphConfig())
		require.NoError(t, g.AddObservation("a", "sink", obsAt(5*time.Minute, 1)))
		require.NoError(t, g.AddObservation("b", "sink", obsAt(2*time.Minute, 2))) // clock skew

		assert.False(t, g.Stats().IndexSorted)

		now := testEpoch.Add(6 * time.Minute)
		neighbors, err := g.GetCausalNeighbors("sink", 10*time.Minute, now)
		require.NoError(t, err)
		assert.Len(t, neighbors["a"], 1)
		assert.Len(t, neighbors["b"], 1)
	})

	t.Run("evicted edge observation is a silent miss", func(t *testing.T) {
		cfg := DefaultGraphConfig()
		cfg.EdgeCapacity = 2
		cfg.MaxIndexEntries = 100
		g := NewTemporalGraph(cfg)

		for i := 0; i < 5; i++ {
			require.NoError(t, g.AddObservation("a", "b", obsAt(time.Duration(i)*time.Second, float64(i))))
		}

		// Index still holds 5 rows but the ring only retains the last 2.
		neighbors, err := g.GetCausalNeighbors("b", time.Hour, testEpoch.Add(time.Minute))
		require.NoError(t, err)
		assert.Len(t, neighbors["a"], 2)
	})
}

func TestTemporalGraph_PruneOldEdges(t *testing.T) {
	t.Run("removes fully aged edges", func(t *testing.T) {
		g := NewTemporalGraph(DefaultGraphConfig())
		require.NoError(t, g.AddObservation("old-svc", "sink", obsAt(0, 1)))
		require.NoError(t, g.AddObservation("fresh-svc", "sink", obsAt(10*time.Minute, 2)))

		now := testEpoch.Add(11 * time.Minute)
		removed := g.PruneOldEdges(5*time.Minute, now)
		assert.Equal(t, 1, removed)

		stats := g.Stats()
		assert.Equal(t, 1, stats.Edges)

		_, ok := g.ServiceState("old-svc")
		assert.False(t, ok, "orphaned node should be dropped")
	})

	t.Run("mixed-age edge retains only fresh subset", func(t *testing.T) {
		g := NewTemporalGraph(DefaultGraphConfig())
		require.NoError(t, g.AddObservation("a", "b", obsAt(0, 1)))
		require.NoError(t, g.AddObservation("a", "b", obsAt(10*time.Minute, 2)))

		now := testEpoch.Add(11 * time.Minute)
		removed := g.PruneOldEdges(5*time.Minute, now)
		assert.Zero(t, removed)

		neighbors, err := g.GetCausalNeighbors("b", time.Hour, now)
		require.NoError(t, err)
		require.Len(t, neighbors["a"], 1)
		assert.Equal(t, 2.0, neighbors["a"][0].LatencyMs)
	})
}

func TestTemporalGraph_ConcurrentWriters(t *testing.T) {
	const (
		writers       = 8
		perWriter     = 50
		commonSink    = "payment-db"
		largeWindowhr = time.Hour
	)

	g := NewTemporalGraph(DefaultGraphConfig())

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			source := fmt.Sprintf("svc-%d", w)
			for i := 0; i < perWriter; i++ {
				obs := obsAt(time.Duration(i)*time.Millisecond*2, float64(i))
				if err := g.AddObservation(source, commonSink, obs); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	neighbors, err := g.GetCausalNeighbors(commonSink, largeWindowhr, testEpoch.Add(time.Minute))
	require.NoError(t, err)

	total := 0
	for _, list := range neighbors {
		total += len(list)
	}
	assert.Equal(t, writers*perWriter, total, "no updates may be lost under concurrency")
	assert.Len(t, neighbors, writers)
}

func TestTemporalGraph_Clear(t *testing.T) {
	g := NewTemporalGraph(DefaultGraphConfig())
	require.NoError(t, g.AddObservation("a", "b", obsAt(0, 1)))

	g.Clear()

	stats := g.Stats()
	assert.Zero(t, stats.Nodes)
	assert.Zero(t, stats.Edges)
	assert.Zero(t, stats.IndexSize)
	assert.True(t, stats.IndexSorted)
}
