// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the sentinel.
//
// # Description
//
// Counters, histograms, and gauges covering the full pipeline:
//   - Event ingestion and drops (by service, level, stage)
//   - Queue depths
//   - Analysis cycles and diagnosis confidence
//   - Executed and blocked remediations
//   - Temporal graph size
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianSentinel/services/pipeline"
)

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for sentinel metrics
const sentinelSubsystem = "sentinel"

// SentinelMetrics holds all Prometheus metrics for the RCA pipeline.
//
// # Thread Safety
//
// All operations are thread-safe.
type SentinelMetrics struct {
	// EventsIngestedTotal counts ingested events.
	// Labels: service, level
	EventsIngestedTotal *prometheus.CounterVec

	// EventsDroppedTotal counts events dropped by backpressure.
	// Labels: stage (ingestion, action)
	EventsDroppedTotal *prometheus.CounterVec

	// QueueDepthGauge tracks bounded queue fill.
	// Labels: queue (raw, action)
	QueueDepthGauge *prometheus.GaugeVec

	// AnalysisCyclesTotal counts analysis passes.
	// Labels: outcome (anomaly, quiet)
	AnalysisCyclesTotal *prometheus.CounterVec

	// DiagnosisConfidence observes diagnosis confidence scores.
	// Labels: service, degraded (true, false)
	DiagnosisConfidence *prometheus.HistogramVec

	// ActionsExecutedTotal counts remediations that cleared the guardrail.
	// Labels: action
	ActionsExecutedTotal *prometheus.CounterVec

	// ActionsBlockedTotal counts remediations the guardrail refused.
	// Labels: action
	ActionsBlockedTotal *prometheus.CounterVec

	// GraphSizeGauge tracks temporal graph cardinality.
	// Labels: dimension (nodes, edges)
	GraphSizeGauge *prometheus.GaugeVec
}

var _ pipeline.Metrics = (*SentinelMetrics)(nil)

// DefaultMetrics is the singleton instance, initialized by InitMetrics().
var DefaultMetrics *SentinelMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once
// at application startup; a second call panics on duplicate
// registration.
func InitMetrics() *SentinelMetrics {
	DefaultMetrics = &SentinelMetrics{
		EventsIngestedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sentinelSubsystem,
				Name:      "events_ingested_total",
				Help:      "Total telemetry events ingested by service and level",
			},
			[]string{"service", "level"},
		),

		EventsDroppedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sentinelSubsystem,
				Name:      "events_dropped_total",
				Help:      "Total items dropped by queue backpressure, by stage",
			},
			[]string{"stage"},
		),

		QueueDepthGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: sentinelSubsystem,
				Name:      "queue_depth",
				Help:      "Current depth of the bounded pipeline queues",
			},
			[]string{"queue"},
		),

		AnalysisCyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sentinelSubsystem,
				Name:      "analysis_cycles_total",
				Help:      "Total analysis cycles by outcome",
			},
			[]string{"outcome"},
		),

		DiagnosisConfidence: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: sentinelSubsystem,
				Name:      "diagnosis_confidence",
				Help:      "Diagnosis confidence scores",
				Buckets:   []float64{0.0, 0.2, 0.4, 0.6, 0.8, 0.9, 0.95, 1.0},
			},
			[]string{"service", "degraded"},
		),

		ActionsExecutedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sentinelSubsystem,
				Name:      "actions_executed_total",
				Help:      "Total remediations that cleared the guardrail",
			},
			[]string{"action"},
		),

		ActionsBlockedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sentinelSubsystem,
				Name:      "actions_blocked_total",
				Help:      "Total remediations refused by the guardrail",
			},
			[]string{"action"},
		),

		GraphSizeGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: sentinelSubsystem,
				Name:      "graph_size",
				Help:      "Temporal graph cardinality by dimension",
			},
			[]string{"dimension"},
		),
	}

	return DefaultMetrics
}

// EventIngested records one ingested event.
func (m *SentinelMetrics) EventIngested(service string, level pipeline.Level) {
	m.EventsIngestedTotal.WithLabelValues(service, string(level)).Inc()
}

// EventDropped records a backpressure drop.
func (m *SentinelMetrics) EventDropped(stage string) {
	m.EventsDroppedTotal.WithLabelValues(stage).Inc()
}

// QueueDepth records the current fill of a bounded queue.
func (m *SentinelMetrics) QueueDepth(queue string, depth int) {
	m.QueueDepthGauge.WithLabelValues(queue).Set(float64(depth))
}

// AnalysisCycle records one analysis pass.
func (m *SentinelMetrics) AnalysisCycle(anomaly bool) {
	outcome := "quiet"
	if anomaly {
		outcome = "anomaly"
	}
	m.AnalysisCyclesTotal.WithLabelValues(outcome).Inc()
}

// DiagnosisObserved records a diagnosis confidence score.
func (m *SentinelMetrics) DiagnosisObserved(service string, confidence float64, degraded bool) {
	label := "false"
	if degraded {
		label = "true"
	}
	m.DiagnosisConfidence.WithLabelValues(service, label).Observe(confidence)
}

// ActionExecuted records a cleared remediation.
func (m *SentinelMetrics) ActionExecuted(action string) {
	m.ActionsExecutedTotal.WithLabelValues(action).Inc()
}

// ActionBlocked records a refused remediation.
func (m *SentinelMetrics) ActionBlocked(action string) {
	m.ActionsBlockedTotal.WithLabelValues(action).Inc()
}

// GraphSize records temporal graph cardinality.
func (m *SentinelMetrics) GraphSize(nodes, edges int) {
	m.GraphSizeGauge.WithLabelValues("nodes").Set(float64(nodes))
	m.GraphSizeGauge.WithLabelValues("edges").Set(float64(edges))
}
