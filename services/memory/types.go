// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memory is the incident memory capability: a Weaviate-backed
// store of enriched telemetry events supporting time-windowed error
// retrieval and semantic similar-incident search.
package memory

import (
	"context"
	"errors"
	"time"
)

// TelemetryEventClassName is the Weaviate class holding ingested events.
const TelemetryEventClassName = "TelemetryEvent"

// Sentinel errors for memory operations.
var (
	// ErrNilClient indicates the store was constructed without a client.
	ErrNilClient = errors.New("memory: weaviate client must not be nil")

	// ErrEmptyQuery indicates QuerySimilar was called with no query text.
	ErrEmptyQuery = errors.New("memory: query text must not be empty")
)

// EventRecord is an enriched telemetry event as the store persists it.
type EventRecord struct {
	// EventID is assigned on insert when blank.
	EventID string `json:"event_id"`

	// Timestamp is when the event was produced.
	Timestamp time.Time `json:"timestamp"`

	// Service is the emitting service id.
	Service string `json:"service"`

	// Level is the log level: INFO, WARNING, ERROR, DEBUG.
	Level string `json:"level"`

	// LatencyMs is the reported request latency in milliseconds.
	LatencyMs float64 `json:"latency_ms"`

	// Message is the log line.
	Message string `json:"message"`

	// Metadata carries open-ended scalar attributes such as
	// db_lock_time or pool_wait_ms.
	Metadata map[string]float64 `json:"metadata,omitempty"`
}

// SimilarIncident is one ranked hit from a semantic search.
type SimilarIncident struct {
	Message   string  `json:"message"`
	Service   string  `json:"service"`
	Level     string  `json:"level"`
	LatencyMs float64 `json:"latency_ms"`

	// Score is the search certainty in [0,1], higher is closer.
	Score float64 `json:"score"`
}

// Store is the incident memory contract the pipeline consumes.
//
// Implementations must be safe for concurrent use; the ingestion and
// analysis stages call them from separate goroutines.
type Store interface {
	// Insert persists one enriched event.
	Insert(ctx context.Context, event EventRecord) error

	// RecentErrors returns ERROR-level events from the trailing window.
	RecentErrors(ctx context.Context, window time.Duration) ([]EventRecord, error)

	// QuerySimilar returns up to limit incidents semantically close to
	// the query text, optionally restricted to one service.
	QuerySimilar(ctx context.Context, text, service string, limit int) ([]SimilarIncident, error)

	// TotalCount returns the number of stored events.
	TotalCount(ctx context.Context) (int, error)

	// Clear drops every stored event.
	Clear(ctx context.Context) error
}

// BatchInserter is an optional upgrade a Store may implement for bulk
// backfill of historical events. Callers type-assert.
type BatchInserter interface {
	// InsertBatch persists many events in one request and returns the
	// number created.
	InsertBatch(ctx context.Context, events []EventRecord) (int, error)
}
