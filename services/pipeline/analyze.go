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
	"time"

	"github.com/AleutianAI/AleutianSentinel/services/causal"
	"github.com/AleutianAI/AleutianSentinel/services/diagnosis"
	"github.com/AleutianAI/AleutianSentinel/services/memory"
)

// similarIncidentQuery is the generic error pattern used to retrieve
// historical context for any anomaly burst.
const similarIncidentQuery = "connection timeout errors"

// maxErrorContextLines caps the distinct log snippets handed to the
// diagnostician.
const maxErrorContextLines = 3

// analysisLoop is stage 2: periodic anomaly detection and diagnosis.
func (c *Controller) analysisLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.AnalysisInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAnalysisCycle(ctx)
		}
	}
}

// runAnalysisCycle executes one detection pass. Every failure inside a
// cycle is logged and swallowed so the cadence survives.
func (c *Controller) runAnalysisCycle(ctx context.Context) {
	c.cycles.Add(1)

	if c.deps.Store == nil {
		c.cfg.Metrics.AnalysisCycle(false)
		return
	}

	recent, err := c.deps.Store.RecentErrors(ctx, c.cfg.ErrorLookback)
	if err != nil {
		c.cfg.Logger.Warn("recent error lookup failed", "error", err)
		c.cfg.Metrics.AnalysisCycle(false)
		return
	}

	if len(recent) <= c.cfg.AnomalyThreshold {
		c.cfg.Metrics.AnalysisCycle(false)
		return
	}

	c.cfg.Logger.Info("anomaly detected",
		"recent_errors", len(recent),
		"lookback", c.cfg.ErrorLookback)
	c.cfg.Metrics.AnalysisCycle(true)

	incident := c.buildIncident(ctx, recent)
	if incident.Service == "" {
		return
	}

	diag, err := c.deps.Diagnostician.Diagnose(ctx, incident)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// The stage is shutting down.
			return
		}
		c.cfg.Logger.Warn("diagnosis failed",
			"service", incident.Service, "error", err)
		return
	}
	if diag.Degraded {
		c.degradedDiags.Add(1)
	}
	c.cfg.Metrics.DiagnosisObserved(incident.Service, diag.Confidence, diag.Degraded)

	if diag.Confidence <= c.cfg.ConfidenceGate {
		c.cfg.Logger.Info("diagnosis below confidence gate",
			"service", incident.Service,
			"confidence", diag.Confidence,
			"gate", c.cfg.ConfidenceGate)
		return
	}

	request := ActionRequest{
		Kind:       KindRemediate,
		Action:     diag.RecommendedAction,
		Target:     diag.AffectedService,
		Reason:     diag.RootCause,
		Confidence: diag.Confidence,
	}
	select {
	case c.actionQueue <- request:
	default:
		c.dropped.Add(1)
		c.cfg.Metrics.EventDropped("action")
		c.cfg.Logger.Warn("action queue full, dropping remediation",
			"action", request.Action, "target", request.Target)
	}
}

// buildIncident assembles the diagnosis context from the error window,
// the memory store, the graph, and the effect model. Each enrichment is
// best-effort; a failed lookup leaves its field empty.
func (c *Controller) buildIncident(ctx context.Context, recent []memory.EventRecord) diagnosis.IncidentContext {
	target := mostAffectedService(recent)
	if target == "" {
		return diagnosis.IncidentContext{}
	}

	incident := diagnosis.IncidentContext{
		Service:      target,
		AvgLatencyMs: meanLatency(recent),
		ErrorRate:    float64(len(recent)) / 100.0,
		ErrorContext: distinctMessages(recent, maxErrorContextLines),
		Chain:        causal.ChainForService(target),
	}

	similar, err := c.deps.Store.QuerySimilar(ctx, similarIncidentQuery, target, 3)
	if err != nil {
		c.cfg.Logger.Debug("similar incident lookup failed",
			"service", target, "error", err)
	} else {
		incident.SimilarIncidents = similar
	}

	neighbors, err := c.deps.Graph.GetCausalNeighbors(target, c.cfg.ErrorLookback, time.Now().UTC())
	if err != nil {
		c.cfg.Logger.Debug("causal neighbor lookup failed",
			"service", target, "error", err)
	} else if len(neighbors) > 0 {
		counts := make(map[string]int, len(neighbors))
		for upstream, observations := range neighbors {
			counts[upstream] = len(observations)
		}
		incident.UpstreamObservations = counts
	}

	if c.deps.Model != nil {
		c.maybeRebuildModel(ctx)
		if effect, err := c.deps.Model.EstimateEffect(); err == nil {
			incident.CausalEffect = effect
		} else if !errors.Is(err, causal.ErrModelNotBuilt) {
			c.cfg.Logger.Debug("effect estimate failed", "error", err)
		}
	}

	return incident
}

// maybeRebuildModel refits the effect model on a cadence: only after
// the store holds enough rows, and then at most once per
// ModelRebuildEvery processed events. A failed fit keeps the previous
// model.
func (c *Controller) maybeRebuildModel(ctx context.Context) {
	processed := c.processed.Load()

	c.rowsMu.Lock()
	defer c.rowsMu.Unlock()

	if c.modelBuilt && processed-c.lastRebuild < uint64(c.cfg.ModelRebuildEvery) {
		return
	}

	total, err := c.deps.Store.TotalCount(ctx)
	if err != nil {
		c.cfg.Logger.Debug("row count lookup failed", "error", err)
		return
	}
	if total <= c.cfg.ModelMinRows {
		return
	}

	if err := c.deps.Model.Build(c.rows.Slice()); err != nil {
		c.cfg.Logger.Warn("effect model rebuild failed",
			"rows", c.rows.Len(), "error", err)
		return
	}
	c.modelBuilt = true
	c.lastRebuild = processed
	c.cfg.Logger.Info("effect model rebuilt",
		"rows", c.rows.Len(), "processed", processed)
}

// mostAffectedService returns the service with the most errors in the
// window. Ties break toward the service seen first.
func mostAffectedService(recent []memory.EventRecord) string {
	counts := make(map[string]int, len(recent))
	var order []string
	for _, record := range recent {
		if record.Service == "" {
			continue
		}
		if _, seen := counts[record.Service]; !seen {
			order = append(order, record.Service)
		}
		counts[record.Service]++
	}

	best := ""
	bestCount := 0
	for _, service := range order {
		if counts[service] > bestCount {
			best = service
			bestCount = counts[service]
		}
	}
	return best
}

func meanLatency(recent []memory.EventRecord) float64 {
	if len(recent) == 0 {
		return 0
	}
	sum := 0.0
	for _, record := range recent {
		sum += record.LatencyMs
	}
	return sum / float64(len(recent))
}

// distinctMessages returns up to limit unique messages in first-seen
// order.
func distinctMessages(recent []memory.EventRecord, limit int) []string {
	seen := make(map[string]struct{}, limit)
	var messages []string
	for _, record := range recent {
		if record.Message == "" {
			continue
		}
		if _, dup := seen[record.Message]; dup {
			continue
		}
		seen[record.Message] = struct{}{}
		messages = append(messages, record.Message)
		if len(messages) >= limit {
			break
		}
	}
	return messages
}
