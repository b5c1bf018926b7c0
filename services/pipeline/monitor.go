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
	"time"
)

// monitoringLoop is stage 4: periodic stats reporting.
func (c *Controller) monitoringLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reportStats(ctx)
		}
	}
}

func (c *Controller) reportStats(ctx context.Context) {
	snap := c.Snapshot()

	c.cfg.Logger.Info("pipeline stats",
		"processed", snap.Processed,
		"errors", snap.Errors,
		"remediations", snap.Remediations,
		"dropped", snap.Dropped,
		"blocked", snap.Blocked,
		"analysis_cycles", snap.AnalysisCycles,
		"raw_queue", snap.RawQueueDepth,
		"action_queue", snap.ActionQueueDepth)

	c.cfg.Metrics.QueueDepth("raw", snap.RawQueueDepth)
	c.cfg.Metrics.QueueDepth("action", snap.ActionQueueDepth)

	graphStats := c.deps.Graph.Stats()
	c.cfg.Metrics.GraphSize(graphStats.Nodes, graphStats.Edges)

	if c.deps.Sink != nil {
		c.deps.Sink.WriteStats(ctx, snap)
	}
}
