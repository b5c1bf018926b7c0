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
	"errors"
	"time"
)

// Sentinel errors returned by graph and estimator operations.
var (
	// ErrEmptyService indicates an operation was given a blank service id.
	ErrEmptyService = errors.New("causal: service id must not be empty")

	// ErrNegativeWindow indicates a windowed query with a non-positive window.
	ErrNegativeWindow = errors.New("causal: window must be positive")

	// ErrModelNotBuilt indicates EstimateEffect was called before Build.
	ErrModelNotBuilt = errors.New("causal: effect model has not been built")

	// ErrInsufficientData indicates the dataset is too small to fit a model.
	ErrInsufficientData = errors.New("causal: insufficient rows to fit effect model")
)

// Observation is a single timestamped measurement on a directed service
// edge. CPUFrom and MemFrom describe the source service at the time of
// the call and are zero when the producer did not report them.
type Observation struct {
	// Timestamp is when the interaction was observed.
	Timestamp time.Time `json:"timestamp"`

	// LatencyMs is the observed call latency in milliseconds.
	LatencyMs float64 `json:"latency_ms"`

	// CPUFrom is the source service CPU utilization (0-100), if reported.
	CPUFrom float64 `json:"cpu_from,omitempty"`

	// MemFrom is the source service memory utilization (0-100), if reported.
	MemFrom float64 `json:"mem_from,omitempty"`

	// HasResources reports whether CPUFrom/MemFrom carry real values.
	HasResources bool `json:"has_resources,omitempty"`
}

// ServiceNode is a vertex in the temporal graph. The resource snapshot is
// overwritten in place whenever a new observation carrying metrics arrives
// with this service as source.
type ServiceNode struct {
	// ID is the service identifier.
	ID string `json:"id"`

	// CurrentCPU is the most recently reported CPU utilization.
	CurrentCPU float64 `json:"current_cpu"`

	// CurrentMemory is the most recently reported memory utilization.
	CurrentMemory float64 `json:"current_memory"`

	// LastUpdated is when the snapshot was last overwritten.
	LastUpdated time.Time `json:"last_updated"`
}

// edgeKey identifies a directed edge in the graph.
type edgeKey struct {
	from string
	to   string
}

// indexEntry is one row of the global chronological index. It references
// an observation by timestamp; the payload stays in the edge ring.
type indexEntry struct {
	ts   time.Time
	from string
	to   string
}

// GraphStats is a point-in-time size summary of the graph, read by the
// status endpoint and the monitoring stage.
type GraphStats struct {
	Nodes        int  `json:"nodes"`
	Edges        int  `json:"edges"`
	Observations int  `json:"observations"`
	IndexSize    int  `json:"index_size"`
	IndexSorted  bool `json:"index_sorted"`
}

// EffectRow is one row of the dataset handed to an EffectModel. Treatment
// is the binary exposure (e.g. "db lock was held") and Outcome the
// measured response (e.g. latency in milliseconds).
type EffectRow struct {
	Treatment bool
	Outcome   float64
}

// EffectModel estimates the magnitude of a treatment effect from observed
// rows. Implementations are built once per dataset snapshot and queried
// until the next rebuild.
type EffectModel interface {
	// Build fits the model against a dataset snapshot.
	Build(rows []EffectRow) error

	// EstimateEffect returns the fitted treatment-effect magnitude.
	// Returns ErrModelNotBuilt before the first successful Build.
	EstimateEffect() (float64, error)
}
