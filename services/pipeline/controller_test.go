// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSentinel/services/audit"
	"github.com/AleutianAI/AleutianSentinel/services/causal"
	"github.com/AleutianAI/AleutianSentinel/services/diagnosis"
	"github.com/AleutianAI/AleutianSentinel/services/guardrail"
	"github.com/AleutianAI/AleutianSentinel/services/memory"
	storagebadger "github.com/AleutianAI/AleutianSentinel/services/storage/badger"
)

// fakeStore is an in-memory memory.Store. RecentErrors pops queued
// batches so a test controls exactly which cycles see an anomaly.
type fakeStore struct {
	mu           sync.Mutex
	inserted     []memory.EventRecord
	errorBatches [][]memory.EventRecord
	similar      []memory.SimilarIncident
	total        int
	cleared      bool
	insertErr    error
}

func (f *fakeStore) Insert(_ context.Context, event memory.EventRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, event)
	return nil
}

func (f *fakeStore) RecentErrors(context.Context, time.Duration) ([]memory.EventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errorBatches) == 0 {
		return nil, nil
	}
	batch := f.errorBatches[0]
	f.errorBatches = f.errorBatches[1:]
	return batch, nil
}

func (f *fakeStore) QuerySimilar(context.Context, string, string, int) ([]memory.SimilarIncident, error) {
	return f.similar, nil
}

func (f *fakeStore) TotalCount(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total, nil
}

func (f *fakeStore) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	return nil
}

func (f *fakeStore) insertedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

// fakeDiagnostician returns a fixed diagnosis and counts calls.
type fakeDiagnostician struct {
	mu    sync.Mutex
	diag  diagnosis.Diagnosis
	err   error
	calls int
}

func (f *fakeDiagnostician) Diagnose(_ context.Context, incident diagnosis.IncidentContext) (diagnosis.Diagnosis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return diagnosis.Diagnosis{}, f.err
	}
	diag := f.diag
	if diag.AffectedService == "" {
		diag.AffectedService = incident.Service
	}
	return diag, nil
}

func (f *fakeDiagnostician) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeModel records Build calls.
type fakeModel struct {
	mu     sync.Mutex
	builds int
	effect float64
	built  bool
}

func (f *fakeModel) Build([]causal.EffectRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds++
	f.built = true
	return nil
}

func (f *fakeModel) EstimateEffect() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.built {
		return 0, causal.ErrModelNotBuilt
	}
	return f.effect, nil
}

func (f *fakeModel) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}

func testDeps(store memory.Store, diagnostician diagnosis.Diagnostician) Deps {
	return Deps{
		Store:         store,
		Graph:         causal.NewTemporalGraph(causal.DefaultGraphConfig()),
		Diagnostician: diagnostician,
		Guard:         guardrail.New(guardrail.DefaultPolicy()),
		Model:         causal.NewMeanDifferenceModel(),
	}
}

func errorBurst(service string, n int) []memory.EventRecord {
	events := make([]memory.EventRecord, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, memory.EventRecord{
			Timestamp: time.Now().UTC(),
			Service:   service,
			Level:     "ERROR",
			LatencyMs: 400,
			Message:   "Request timeout",
		})
	}
	return events
}

func TestNewController_Validation(t *testing.T) {
	diag := &fakeDiagnostician{}
	guard := guardrail.New(guardrail.DefaultPolicy())
	graph := causal.NewTemporalGraph(causal.DefaultGraphConfig())

	t.Run("requires graph", func(t *testing.T) {
		_, err := NewController(Config{}, Deps{Diagnostician: diag, Guard: guard})
		assert.Error(t, err)
	})

	t.Run("requires diagnostician", func(t *testing.T) {
		_, err := NewController(Config{}, Deps{Graph: graph, Guard: guard})
		assert.Error(t, err)
	})

	t.Run("requires guardrail", func(t *testing.T) {
		_, err := NewController(Config{}, Deps{Graph: graph, Diagnostician: diag})
		assert.Error(t, err)
	})

	t.Run("nil store and journal are allowed", func(t *testing.T) {
		c, err := NewController(Config{}, Deps{Graph: graph, Diagnostician: diag, Guard: guard})
		require.NoError(t, err)
		assert.NotNil(t, c)
	})
}

func TestSubmit_DropsOnFullQueue(t *testing.T) {
	c, err := NewController(Config{RawQueueSize: 5}, testDeps(&fakeStore{}, &fakeDiagnostician{}))
	require.NoError(t, err)

	// The controller is not started, so nothing drains the queue.
	for i := 0; i < 5; i++ {
		assert.True(t, c.Submit(LogEvent{Service: "api-gateway", Level: LevelInfo}))
	}
	assert.False(t, c.Submit(LogEvent{Service: "api-gateway", Level: LevelInfo}))
	assert.False(t, c.Submit(LogEvent{Service: "api-gateway", Level: LevelInfo}))

	snap := c.Snapshot()
	assert.Equal(t, uint64(2), snap.Dropped)
	assert.Equal(t, 5, snap.RawQueueDepth)
}

func TestStartStop_Lifecycle(t *testing.T) {
	c, err := NewController(Config{
		AnalysisInterval: 10 * time.Millisecond,
		StatsInterval:    10 * time.Millisecond,
	}, testDeps(&fakeStore{}, &fakeDiagnostician{}))
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyRunning)

	assert.True(t, c.Snapshot().Running)
	c.Stop()
	assert.False(t, c.Snapshot().Running)

	// Stop again is a no-op.
	c.Stop()

	// The controller can be restarted.
	require.NoError(t, c.Start(context.Background()))
	c.Stop()
}

func TestIngestion_PersistsAndCounts(t *testing.T) {
	store := &fakeStore{}
	c, err := NewController(Config{
		AnalysisInterval: time.Hour, // keep analysis quiet
		StatsInterval:    time.Hour,
	}, testDeps(store, &fakeDiagnostician{}))
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	c.Submit(LogEvent{Service: "payment-db", Level: LevelError, Message: "lock wait timeout", LatencyMs: 900})
	c.Submit(LogEvent{Service: "api-gateway", Level: LevelInfo, Message: "ok", LatencyMs: 30,
		Upstream: "user-service", CPU: 41, Memory: 55})

	require.Eventually(t, func() bool {
		return c.Snapshot().Processed == 2
	}, time.Second, 5*time.Millisecond)

	snap := c.Snapshot()
	assert.Equal(t, uint64(1), snap.Errors)
	assert.Equal(t, 2, store.insertedCount())

	// The upstream-annotated event produced a graph observation.
	stats := c.deps.Graph.Stats()
	assert.Equal(t, 1, stats.Edges)
	assert.Equal(t, 1, stats.Observations)

	state, ok := c.deps.Graph.ServiceState("user-service")
	require.True(t, ok)
	assert.Equal(t, 41.0, state.CurrentCPU)
}

func TestIngestion_PersistFailureLeavesProcessedUntouched(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("weaviate unavailable")}
	c, err := NewController(Config{}, testDeps(store, &fakeDiagnostician{}))
	require.NoError(t, err)

	ctx := context.Background()
	c.ingestOne(ctx, LogEvent{Service: "payment-db", Level: LevelError, Message: "lock wait timeout",
		Upstream: "redis-cache", LatencyMs: 900})

	snap := c.Snapshot()
	assert.Zero(t, snap.Processed)
	// The event was still observed: error count and graph index advance.
	assert.Equal(t, uint64(1), snap.Errors)
	assert.Equal(t, 1, c.deps.Graph.Stats().Observations)

	// Once the store recovers, events count again.
	store.mu.Lock()
	store.insertErr = nil
	store.mu.Unlock()
	c.ingestOne(ctx, LogEvent{Service: "payment-db", Level: LevelInfo, Message: "ok"})
	assert.Equal(t, uint64(1), c.Snapshot().Processed)
}

func TestAnalysis_AnomalyProducesExactlyOneAction(t *testing.T) {
	store := &fakeStore{
		// One anomalous window, then quiet.
		errorBatches: [][]memory.EventRecord{errorBurst("payment-db", 4)},
		similar:      []memory.SimilarIncident{{Service: "payment-db", Message: "pool saturation", Score: 0.88}},
	}
	diag := &fakeDiagnostician{diag: diagnosis.Diagnosis{
		RootCause:         "db lock contention",
		Confidence:        0.9,
		RecommendedAction: "scale_up",
	}}

	c, err := NewController(Config{
		AnalysisInterval: 10 * time.Millisecond,
		StatsInterval:    time.Hour,
	}, testDeps(store, diag))
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	require.Eventually(t, func() bool {
		return c.Snapshot().Remediations == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Later quiet cycles must not produce more actions.
	time.Sleep(50 * time.Millisecond)
	snap := c.Snapshot()
	assert.Equal(t, uint64(1), snap.Remediations)
	assert.Equal(t, 1, diag.callCount())
	assert.Greater(t, snap.AnalysisCycles, uint64(1))

	history := c.History()
	require.Len(t, history, 1)
	assert.Equal(t, "scale_up", history[0].Action)
	assert.Equal(t, "payment-db", history[0].Service)
	assert.True(t, history[0].Executed)
}

func TestAnalysis_BelowThresholdIsQuiet(t *testing.T) {
	store := &fakeStore{
		// Exactly the threshold is not an anomaly: the count must exceed it.
		errorBatches: [][]memory.EventRecord{errorBurst("payment-db", 3)},
	}
	diag := &fakeDiagnostician{diag: diagnosis.Diagnosis{Confidence: 0.99, RecommendedAction: "scale_up"}}

	c, err := NewController(Config{
		AnalysisInterval: 10 * time.Millisecond,
		StatsInterval:    time.Hour,
	}, testDeps(store, diag))
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	require.Eventually(t, func() bool {
		return c.Snapshot().AnalysisCycles >= 3
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, diag.callCount())
	assert.Zero(t, c.Snapshot().Remediations)
}

func TestAnalysis_DiagnosisErrorDoesNotStopCadence(t *testing.T) {
	store := &fakeStore{
		errorBatches: [][]memory.EventRecord{
			errorBurst("payment-db", 5),
			errorBurst("payment-db", 5),
		},
	}
	diag := &fakeDiagnostician{err: errors.New("llm backend unreachable")}

	c, err := NewController(Config{
		AnalysisInterval: 10 * time.Millisecond,
		StatsInterval:    time.Hour,
	}, testDeps(store, diag))
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	// Both anomalous windows reach the diagnostician; its failures are
	// logged and the cadence keeps running.
	require.Eventually(t, func() bool {
		return diag.callCount() == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Zero(t, c.Snapshot().Remediations)
	assert.Empty(t, c.History())
}

func TestAnalysis_ConfidenceGateHoldsBackAction(t *testing.T) {
	store := &fakeStore{
		errorBatches: [][]memory.EventRecord{errorBurst("payment-db", 6)},
	}
	diag := &fakeDiagnostician{diag: diagnosis.Diagnosis{
		RootCause:         "uncertain",
		Confidence:        0.8, // at the gate, not past it
		RecommendedAction: "scale_up",
	}}

	c, err := NewController(Config{
		AnalysisInterval: 10 * time.Millisecond,
		StatsInterval:    time.Hour,
	}, testDeps(store, diag))
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	require.Eventually(t, func() bool {
		return diag.callCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, c.Snapshot().Remediations)
	assert.Empty(t, c.History())
}

func TestMostAffectedService(t *testing.T) {
	tests := []struct {
		name   string
		events []memory.EventRecord
		want   string
	}{
		{
			name: "plurality wins",
			events: []memory.EventRecord{
				{Service: "a"}, {Service: "b"}, {Service: "b"},
			},
			want: "b",
		},
		{
			name: "ties break toward first seen",
			events: []memory.EventRecord{
				{Service: "x"}, {Service: "y"}, {Service: "y"}, {Service: "x"},
			},
			want: "x",
		},
		{
			name:   "empty window",
			events: nil,
			want:   "",
		},
		{
			name: "blank services ignored",
			events: []memory.EventRecord{
				{Service: ""}, {Service: ""}, {Service: "z"},
			},
			want: "z",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, mostAffectedService(tc.events))
		})
	}
}

func TestDistinctMessages(t *testing.T) {
	events := []memory.EventRecord{
		{Message: "timeout"},
		{Message: "timeout"},
		{Message: "pool exhausted"},
		{Message: ""},
		{Message: "lock wait"},
		{Message: "disk full"},
	}
	got := distinctMessages(events, 3)
	assert.Equal(t, []string{"timeout", "pool exhausted", "lock wait"}, got)
}

func TestMaybeRebuildModel_Cadence(t *testing.T) {
	store := &fakeStore{total: 150}
	model := &fakeModel{effect: 12.5}

	deps := testDeps(store, &fakeDiagnostician{})
	deps.Model = model
	c, err := NewController(Config{}, deps)
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("first rebuild happens once rows exist", func(t *testing.T) {
		c.processed.Store(10)
		c.maybeRebuildModel(ctx)
		assert.Equal(t, 1, model.buildCount())
	})

	t.Run("no rebuild before the cadence elapses", func(t *testing.T) {
		c.processed.Store(400)
		c.maybeRebuildModel(ctx)
		assert.Equal(t, 1, model.buildCount())
	})

	t.Run("rebuild after 500 more processed events", func(t *testing.T) {
		c.processed.Store(510)
		c.maybeRebuildModel(ctx)
		assert.Equal(t, 2, model.buildCount())
	})

	t.Run("sparse store suppresses rebuilds", func(t *testing.T) {
		store.mu.Lock()
		store.total = 50
		store.mu.Unlock()
		c.processed.Store(2000)
		c.maybeRebuildModel(ctx)
		assert.Equal(t, 2, model.buildCount())
	})
}

func TestHistory_WarmedFromJournal(t *testing.T) {
	db, err := storagebadger.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	journal, err := audit.NewJournal(db, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for _, action := range []string{"increase_pool", "scale_up", "investigate_db"} {
		_, err := journal.Append(ctx, audit.Record{Service: "payment-db", Action: action, Executed: true})
		require.NoError(t, err)
	}

	deps := testDeps(&fakeStore{}, &fakeDiagnostician{})
	deps.Journal = journal
	c, err := NewController(Config{}, deps)
	require.NoError(t, err)

	history := c.History()
	require.Len(t, history, 3)
	assert.Equal(t, "increase_pool", history[0].Action)
	assert.Equal(t, "investigate_db", history[2].Action)
}

func TestResetStatsAndClearHistory(t *testing.T) {
	c, err := NewController(Config{}, testDeps(&fakeStore{}, &fakeDiagnostician{}))
	require.NoError(t, err)

	c.processed.Store(42)
	c.errorEvents.Store(7)
	c.histMu.Lock()
	c.history.Push(audit.Record{Action: "scale_up"})
	c.histMu.Unlock()

	c.ResetStats()
	c.ClearHistory()

	snap := c.Snapshot()
	assert.Zero(t, snap.Processed)
	assert.Zero(t, snap.Errors)
	assert.Empty(t, c.History())
}
