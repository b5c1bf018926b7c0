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

	"github.com/AleutianAI/AleutianSentinel/services/causal"
	"github.com/AleutianAI/AleutianSentinel/services/memory"
)

// dbLockTreatmentThreshold marks an event as "treated" for the effect
// dataset: the source held a database lock materially longer than the
// healthy baseline.
const dbLockTreatmentThreshold = 1.0

// ingestionLoop is stage 1: enrich, persist, and index each event.
func (c *Controller) ingestionLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-c.rawQueue:
			c.ingestOne(ctx, event)
		}
	}
}

// ingestOne processes a single event. Failures are logged and isolated;
// the loop never dies on a bad record.
func (c *Controller) ingestOne(ctx context.Context, event LogEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Level == LevelError {
		c.errorEvents.Add(1)
	}

	persisted := true
	if c.deps.Store != nil {
		record := memory.EventRecord{
			Timestamp: event.Timestamp,
			Service:   event.Service,
			Level:     string(event.Level),
			LatencyMs: event.LatencyMs,
			Message:   event.Message,
			Metadata:  event.Metadata,
		}
		if err := c.deps.Store.Insert(ctx, record); err != nil {
			c.cfg.Logger.Error("event persist failed",
				"service", event.Service, "error", err)
			persisted = false
		}
	}

	if event.Upstream != "" && event.Upstream != event.Service {
		obs := causal.Observation{
			Timestamp: event.Timestamp,
			LatencyMs: event.LatencyMs,
		}
		if event.CPU > 0 || event.Memory > 0 {
			obs.CPUFrom = event.CPU
			obs.MemFrom = event.Memory
			obs.HasResources = true
		}
		if err := c.deps.Graph.AddObservation(event.Upstream, event.Service, obs); err != nil {
			c.cfg.Logger.Warn("graph observation rejected",
				"from", event.Upstream, "to", event.Service, "error", err)
		}
	}

	c.rowsMu.Lock()
	c.rows.Push(causal.EffectRow{
		Treatment: event.Metadata["db_lock_time"] >= dbLockTreatmentThreshold,
		Outcome:   event.LatencyMs,
	})
	c.rowsMu.Unlock()

	if c.deps.Sink != nil {
		c.deps.Sink.WriteLatency(ctx, event.Service, event.LatencyMs, event.Timestamp)
	}

	// A failed persist is transient: the event still fed the graph and
	// the effect dataset, but it does not count as processed.
	if persisted {
		c.processed.Add(1)
		c.cfg.Metrics.EventIngested(event.Service, event.Level)
	}
}
