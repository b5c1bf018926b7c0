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
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianSentinel/services/causal"
)

// Version is the sentinel release string.
const Version = "1.0.0"

// graphPruner drops aged observations from the temporal graph on a
// fixed cadence so memory stays bounded over long runs.
type graphPruner struct {
	graph    *causal.TemporalGraph
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger

	started atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newGraphPruner(graph *causal.TemporalGraph, interval, maxAge time.Duration, logger *slog.Logger) *graphPruner {
	return &graphPruner{
		graph:    graph,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the maintenance goroutine. Subsequent calls are no-ops.
func (p *graphPruner) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.run(ctx)
}

// Stop halts maintenance and waits for the goroutine to exit. Safe to
// call repeatedly, and on a pruner that was never started.
func (p *graphPruner) Stop() {
	if !p.started.Load() {
		return
	}
	select {
	case <-p.stopCh:
		// already stopped
	default:
		close(p.stopCh)
	}
	<-p.doneCh
}

func (p *graphPruner) run(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			pruned := p.graph.PruneOldEdges(p.maxAge, time.Now().UTC())
			if pruned > 0 {
				p.logger.Debug("graph maintenance pruned observations",
					"pruned", pruned, "max_age", p.maxAge)
			}
		}
	}
}
