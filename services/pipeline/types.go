// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline hosts the autonomous RCA controller.
//
// Events flow through four concurrent stages connected by bounded
// channels: ingestion enriches and persists, analysis detects anomaly
// bursts and obtains a diagnosis, action screens and records
// remediations, monitoring reports. Backpressure is explicit: a full
// queue drops the newest item and counts the drop, it never blocks a
// producer.
package pipeline

import (
	"context"
	"time"
)

// Level is a log severity as carried on the wire.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// KindRemediate is the only ActionRequest kind currently produced.
const KindRemediate = "remediate"

// LogEvent is one telemetry event submitted to the pipeline.
type LogEvent struct {
	// Timestamp is when the event was produced. Assigned at ingestion
	// when zero.
	Timestamp time.Time `json:"timestamp"`

	// Service is the emitting service id.
	Service string `json:"service"`

	// Level is the log severity.
	Level Level `json:"level"`

	// Message is the log line.
	Message string `json:"message"`

	// LatencyMs is the reported request latency in milliseconds.
	LatencyMs float64 `json:"latency_ms"`

	// Upstream optionally names the calling service. When set,
	// ingestion records an Upstream -> Service graph observation.
	Upstream string `json:"upstream,omitempty"`

	// CPU and Memory are optional source-side utilization percentages
	// attached to the graph observation.
	CPU    float64 `json:"cpu,omitempty"`
	Memory float64 `json:"memory,omitempty"`

	// Metadata carries open-ended scalar attributes such as
	// db_lock_time or pool_wait_ms.
	Metadata map[string]float64 `json:"metadata,omitempty"`
}

// ActionRequest is a remediation proposal produced by the analysis
// stage and consumed exactly once by the action stage.
type ActionRequest struct {
	// Kind is currently always KindRemediate.
	Kind string `json:"kind"`

	// Action is a whitelisted remediation verb.
	Action string `json:"action"`

	// Target is the affected service id.
	Target string `json:"target"`

	// Reason is the diagnosed root cause.
	Reason string `json:"reason"`

	// Confidence is the diagnosis confidence that cleared the gate.
	Confidence float64 `json:"confidence"`
}

// Snapshot is a point-in-time view of the controller's counters.
type Snapshot struct {
	Processed        uint64 `json:"processed"`
	Errors           uint64 `json:"errors"`
	Remediations     uint64 `json:"remediations"`
	Dropped          uint64 `json:"dropped"`
	Blocked          uint64 `json:"blocked"`
	AnalysisCycles   uint64 `json:"analysis_cycles"`
	DegradedDiags    uint64 `json:"degraded_diagnoses"`
	RawQueueDepth    int    `json:"raw_queue_depth"`
	ActionQueueDepth int    `json:"action_queue_depth"`
	Running          bool   `json:"running"`
}

// Metrics is the instrumentation seam the controller reports through.
// The production implementation lives in the host service; tests and
// headless runs use NopMetrics.
type Metrics interface {
	EventIngested(service string, level Level)
	EventDropped(stage string)
	QueueDepth(queue string, depth int)
	AnalysisCycle(anomaly bool)
	DiagnosisObserved(service string, confidence float64, degraded bool)
	ActionExecuted(action string)
	ActionBlocked(action string)
	GraphSize(nodes, edges int)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) EventIngested(string, Level) {}

func (NopMetrics) EventDropped(string) {}

func (NopMetrics) QueueDepth(string, int) {}

func (NopMetrics) AnalysisCycle(bool) {}

func (NopMetrics) DiagnosisObserved(string, float64, bool) {}

func (NopMetrics) ActionExecuted(string) {}

func (NopMetrics) ActionBlocked(string) {}

func (NopMetrics) GraphSize(int, int) {}

// StatsSink receives periodic stats and per-event latency points.
// Optional; the host wires an InfluxDB-backed implementation.
type StatsSink interface {
	WriteLatency(ctx context.Context, service string, latencyMs float64, ts time.Time)
	WriteStats(ctx context.Context, snap Snapshot)
}
