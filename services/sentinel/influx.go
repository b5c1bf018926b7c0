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
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/AleutianSentinel/services/pipeline"
)

// InfluxSink writes per-event latency points and periodic pipeline
// stats to InfluxDB. Writes are best-effort: a failed point is logged
// and dropped, never retried on the hot path.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *slog.Logger
}

var _ pipeline.StatsSink = (*InfluxSink)(nil)

// NewInfluxSink connects a sink to the given InfluxDB instance.
func NewInfluxSink(url, token, org, bucket string, logger *slog.Logger) *InfluxSink {
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClient(url, token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		logger:   logger,
	}
}

// WriteLatency records one event latency point.
func (s *InfluxSink) WriteLatency(ctx context.Context, service string, latencyMs float64, ts time.Time) {
	p := influxdb2.NewPoint(
		"event_latency",
		map[string]string{"service": service},
		map[string]interface{}{"latency_ms": latencyMs},
		ts,
	)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		s.logger.Debug("influx latency write failed", "service", service, "error", err)
	}
}

// WriteStats records one pipeline stats point.
func (s *InfluxSink) WriteStats(ctx context.Context, snap pipeline.Snapshot) {
	p := influxdb2.NewPoint(
		"pipeline_stats",
		map[string]string{},
		map[string]interface{}{
			"processed":          int64(snap.Processed),
			"errors":             int64(snap.Errors),
			"remediations":       int64(snap.Remediations),
			"dropped":            int64(snap.Dropped),
			"blocked":            int64(snap.Blocked),
			"analysis_cycles":    int64(snap.AnalysisCycles),
			"raw_queue_depth":    snap.RawQueueDepth,
			"action_queue_depth": snap.ActionQueueDepth,
		},
		time.Now().UTC(),
	)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		s.logger.Debug("influx stats write failed", "error", err)
	}
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
