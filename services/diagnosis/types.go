// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diagnosis turns an incident context into a structured
// remediation suggestion via an LLM backend. Transport failures, rate
// limiting, and unparseable responses all degrade to a low-confidence
// page-human diagnosis; the caller always gets valid data.
package diagnosis

import (
	"context"

	"github.com/AleutianAI/AleutianSentinel/services/causal"
	"github.com/AleutianAI/AleutianSentinel/services/memory"
)

// ActionPageHuman is the escalation action every degraded diagnosis
// recommends.
const ActionPageHuman = "page_human"

// actionWhitelist is the closed set of actions a diagnosis may
// recommend. Anything the model invents outside this set is normalized
// to page_human.
var actionWhitelist = map[string]struct{}{
	"increase_pool":   {},
	"restart_service": {},
	"scale_up":        {},
	"investigate_db":  {},
	ActionPageHuman:   {},
}

// IncidentContext is the typed context the analysis stage assembles for
// a diagnosis request.
type IncidentContext struct {
	// Service is the most-affected service by error frequency.
	Service string `json:"service"`

	// AvgLatencyMs is the mean latency across the window's errors.
	AvgLatencyMs float64 `json:"avg_latency_ms"`

	// ErrorRate is the normalized error frequency in the window.
	ErrorRate float64 `json:"error_rate"`

	// ErrorContext is a snippet of distinct recent error messages.
	ErrorContext []string `json:"error_context"`

	// SimilarIncidents are semantically close historical events.
	SimilarIncidents []memory.SimilarIncident `json:"similar_incidents"`

	// Chain is the narrative causal-chain hypothesis. Presentation
	// only; see causal.ChainHypothesis.
	Chain causal.ChainHypothesis `json:"chain"`

	// CausalEffect is the fitted treatment-effect magnitude, zero when
	// no model has been built. Kept separate from Chain so narrative
	// and measurement never blur.
	CausalEffect float64 `json:"causal_effect"`

	// UpstreamObservations maps upstream services to their recent
	// observation counts against the affected service.
	UpstreamObservations map[string]int `json:"upstream_observations,omitempty"`
}

// Diagnosis is the structured result of one diagnosis request.
type Diagnosis struct {
	// RootCause is a brief technical description.
	RootCause string `json:"root_cause"`

	// Confidence is the model's self-reported confidence in [0,1].
	Confidence float64 `json:"confidence_score"`

	// AffectedService is the service the action targets.
	AffectedService string `json:"affected_service"`

	// RecommendedAction is one of the whitelisted actions.
	RecommendedAction string `json:"recommended_action"`

	// Reasoning is a one sentence explanation.
	Reasoning string `json:"reasoning"`

	// Degraded is true when this diagnosis was synthesized after an
	// upstream failure rather than returned by the model.
	Degraded bool `json:"degraded,omitempty"`
}

// Diagnostician is the diagnosis capability the pipeline consumes.
//
// Implementations must degrade rather than fail: a returned error is
// reserved for context cancellation; every other failure mode yields a
// zero-confidence page-human Diagnosis and a nil error.
type Diagnostician interface {
	Diagnose(ctx context.Context, incident IncidentContext) (Diagnosis, error)
}
