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
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianSentinel/pkg/ringbuf"
	"github.com/AleutianAI/AleutianSentinel/services/audit"
	"github.com/AleutianAI/AleutianSentinel/services/causal"
	"github.com/AleutianAI/AleutianSentinel/services/diagnosis"
	"github.com/AleutianAI/AleutianSentinel/services/guardrail"
	"github.com/AleutianAI/AleutianSentinel/services/memory"
)

// ErrAlreadyRunning is returned by Start on a running controller.
var ErrAlreadyRunning = errors.New("pipeline: controller already running")

// Config tunes the controller. Zero values take the documented
// defaults via applyConfigDefaults.
type Config struct {
	// RawQueueSize bounds the ingestion queue. Default: 100.
	RawQueueSize int

	// ActionQueueSize bounds the action queue. Default: 50.
	ActionQueueSize int

	// AnalysisInterval is the analysis cadence. Default: 2s.
	AnalysisInterval time.Duration

	// ErrorLookback is the anomaly detection window. Default: 5m.
	ErrorLookback time.Duration

	// AnomalyThreshold is the error count a window must exceed before
	// a diagnosis is attempted. Default: 3.
	AnomalyThreshold int

	// ConfidenceGate is the diagnosis confidence an action must exceed
	// to be enqueued. Default: 0.8.
	ConfidenceGate float64

	// ModelRebuildEvery is how many processed events between effect
	// model rebuilds. Default: 500.
	ModelRebuildEvery int

	// ModelMinRows is the store row count required before the first
	// rebuild. Default: 100.
	ModelMinRows int

	// EffectRowCap bounds the in-memory effect dataset. Default: 5000.
	EffectRowCap int

	// HistorySize bounds the remediation history ring. Default: 20.
	HistorySize int

	// StatsInterval is the monitoring cadence. Default: 10s.
	StatsInterval time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics defaults to NopMetrics.
	Metrics Metrics
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.RawQueueSize <= 0 {
		cfg.RawQueueSize = 100
	}
	if cfg.ActionQueueSize <= 0 {
		cfg.ActionQueueSize = 50
	}
	if cfg.AnalysisInterval <= 0 {
		cfg.AnalysisInterval = 2 * time.Second
	}
	if cfg.ErrorLookback <= 0 {
		cfg.ErrorLookback = 5 * time.Minute
	}
	if cfg.AnomalyThreshold <= 0 {
		cfg.AnomalyThreshold = 3
	}
	if cfg.ConfidenceGate <= 0 {
		cfg.ConfidenceGate = 0.8
	}
	if cfg.ModelRebuildEvery <= 0 {
		cfg.ModelRebuildEvery = 500
	}
	if cfg.ModelMinRows <= 0 {
		cfg.ModelMinRows = 100
	}
	if cfg.EffectRowCap <= 0 {
		cfg.EffectRowCap = 5000
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 20
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	return cfg
}

// Deps are the collaborators the controller drives. Store, Journal and
// Sink are optional; the controller degrades around their absence.
type Deps struct {
	Store         memory.Store
	Graph         *causal.TemporalGraph
	Diagnostician diagnosis.Diagnostician
	Guard         *guardrail.Guardrail
	Model         causal.EffectModel
	Journal       *audit.Journal
	Sink          StatsSink
}

// Controller moves telemetry through ingestion, analysis, action and
// monitoring stages.
//
// # Description
//
// Submit feeds the bounded raw queue; the analysis stage feeds the
// bounded action queue. Both drop on full rather than block. Stages
// run as goroutines under one cancellable context; every stage
// isolates per-item failures so a bad record, fit or diagnosis never
// kills a loop.
//
// # Thread Safety
//
// Safe for concurrent use. Counters are atomics; the history ring and
// effect dataset each sit behind their own mutex.
type Controller struct {
	cfg  Config
	deps Deps

	rawQueue    chan LogEvent
	actionQueue chan ActionRequest

	processed     atomic.Uint64
	errorEvents   atomic.Uint64
	remediations  atomic.Uint64
	dropped       atomic.Uint64
	blockedCount  atomic.Uint64
	cycles        atomic.Uint64
	degradedDiags atomic.Uint64

	histMu  sync.Mutex
	history *ringbuf.Ring[audit.Record]

	rowsMu      sync.Mutex
	rows        *ringbuf.Ring[causal.EffectRow]
	modelBuilt  bool
	lastRebuild uint64

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewController wires a controller. Graph, Diagnostician and Guard are
// required; a nil Store disables persistence and anomaly detection, a
// nil Model disables effect estimation.
func NewController(cfg Config, deps Deps) (*Controller, error) {
	if deps.Graph == nil {
		return nil, errors.New("pipeline: graph must not be nil")
	}
	if deps.Diagnostician == nil {
		return nil, errors.New("pipeline: diagnostician must not be nil")
	}
	if deps.Guard == nil {
		return nil, errors.New("pipeline: guardrail must not be nil")
	}
	cfg = applyConfigDefaults(cfg)

	c := &Controller{
		cfg:         cfg,
		deps:        deps,
		rawQueue:    make(chan LogEvent, cfg.RawQueueSize),
		actionQueue: make(chan ActionRequest, cfg.ActionQueueSize),
		history:     ringbuf.New[audit.Record](cfg.HistorySize),
		rows:        ringbuf.New[causal.EffectRow](cfg.EffectRowCap),
	}

	if deps.Journal != nil {
		c.warmHistory(context.Background())
	}
	return c, nil
}

// warmHistory replays the tail of the journal into the history ring so
// operators see pre-restart remediations.
func (c *Controller) warmHistory(ctx context.Context) {
	records, err := c.deps.Journal.Replay(ctx, c.cfg.HistorySize)
	if err != nil {
		c.cfg.Logger.Warn("remediation history replay failed", "error", err)
		return
	}
	for _, rec := range records {
		c.history.Push(rec)
	}
	if len(records) > 0 {
		c.cfg.Logger.Info("remediation history warmed", "records", len(records))
	}
}

// Start launches the four stage goroutines. Returns ErrAlreadyRunning
// on a second call before Stop.
func (c *Controller) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.cfg.Logger.Info("starting pipeline controller",
		"raw_queue", c.cfg.RawQueueSize,
		"action_queue", c.cfg.ActionQueueSize,
		"analysis_interval", c.cfg.AnalysisInterval)

	c.wg.Add(4)
	go func() { defer c.wg.Done(); c.ingestionLoop(ctx) }()
	go func() { defer c.wg.Done(); c.analysisLoop(ctx) }()
	go func() { defer c.wg.Done(); c.actionLoop(ctx) }()
	go func() { defer c.wg.Done(); c.monitoringLoop(ctx) }()
	return nil
}

// Stop cancels the stages and waits for them to drain.
func (c *Controller) Stop() {
	c.runMu.Lock()
	if !c.running {
		c.runMu.Unlock()
		return
	}
	c.cancel()
	c.runMu.Unlock()

	c.wg.Wait()

	c.runMu.Lock()
	c.running = false
	c.runMu.Unlock()
	c.cfg.Logger.Info("pipeline controller stopped")
}

// Submit offers an event to the raw queue without blocking. Returns
// false when the queue is full and the event was dropped.
func (c *Controller) Submit(event LogEvent) bool {
	select {
	case c.rawQueue <- event:
		return true
	default:
		c.dropped.Add(1)
		c.cfg.Metrics.EventDropped("ingestion")
		c.cfg.Logger.Warn("raw queue full, dropping event",
			"service", event.Service, "level", string(event.Level))
		return false
	}
}

// Snapshot returns current counters and queue depths.
func (c *Controller) Snapshot() Snapshot {
	c.runMu.Lock()
	running := c.running
	c.runMu.Unlock()

	return Snapshot{
		Processed:        c.processed.Load(),
		Errors:           c.errorEvents.Load(),
		Remediations:     c.remediations.Load(),
		Dropped:          c.dropped.Load(),
		Blocked:          c.blockedCount.Load(),
		AnalysisCycles:   c.cycles.Load(),
		DegradedDiags:    c.degradedDiags.Load(),
		RawQueueDepth:    len(c.rawQueue),
		ActionQueueDepth: len(c.actionQueue),
		Running:          running,
	}
}

// History returns the remediation history, oldest first.
func (c *Controller) History() []audit.Record {
	c.histMu.Lock()
	defer c.histMu.Unlock()
	return c.history.Slice()
}

// ClearHistory empties the remediation history ring. The durable
// journal is untouched.
func (c *Controller) ClearHistory() {
	c.histMu.Lock()
	defer c.histMu.Unlock()
	c.history.Clear()
}

// ResetStats zeroes every counter. Used when the memory store is
// flushed so operator dashboards restart from a clean slate.
func (c *Controller) ResetStats() {
	c.processed.Store(0)
	c.errorEvents.Store(0)
	c.remediations.Store(0)
	c.dropped.Store(0)
	c.blockedCount.Store(0)
	c.cycles.Store(0)
	c.degradedDiags.Store(0)
}
