// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memory

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// maxMessageLength is the longest message stored verbatim. Anything
// longer is split and only the first chunk is vectorized; stack traces
// pasted into log lines otherwise blow out embedding quality.
const maxMessageLength = 1000

// WeaviateStore implements Store against a Weaviate instance.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying client is goroutine-safe and
// the store keeps no mutable state.
type WeaviateStore struct {
	client   *weaviate.Client
	splitter textsplitter.TextSplitter
}

var (
	_ Store         = (*WeaviateStore)(nil)
	_ BatchInserter = (*WeaviateStore)(nil)
)

// NewWeaviateStore creates a store and ensures the schema exists.
func NewWeaviateStore(ctx context.Context, client *weaviate.Client) (*WeaviateStore, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if err := EnsureSchema(ctx, client); err != nil {
		return nil, err
	}
	return &WeaviateStore{
		client: client,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(maxMessageLength),
			textsplitter.WithChunkOverlap(0),
		),
	}, nil
}

// Insert persists one enriched event.
//
// # Description
//
// Assigns an event id when absent, truncates oversized messages via the
// text splitter, serializes the open metadata map to JSON, and writes
// one object. Vectorization happens server-side in Weaviate.
func (s *WeaviateStore) Insert(ctx context.Context, event EventRecord) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	message := event.Message
	if len(message) > maxMessageLength {
		chunks, err := s.splitter.SplitText(message)
		if err == nil && len(chunks) > 0 {
			message = chunks[0]
		} else {
			message = message[:maxMessageLength]
		}
	}

	metadataJSON := "{}"
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("serializing event metadata: %w", err)
		}
		metadataJSON = string(raw)
	}

	_, err := s.client.Data().Creator().
		WithClassName(TelemetryEventClassName).
		WithProperties(map[string]interface{}{
			"eventId":      event.EventID,
			"service":      event.Service,
			"level":        event.Level,
			"message":      message,
			"latencyMs":    event.LatencyMs,
			"timestamp":    event.Timestamp.Format(time.RFC3339Nano),
			"metadataJson": metadataJSON,
		}).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("storing event in Weaviate: %w", err)
	}

	slog.Debug("Stored telemetry event",
		"event_id", event.EventID,
		"service", event.Service,
		"level", event.Level)
	return nil
}

// InsertBatch persists many events in one batch request.
//
// # Description
//
// Object IDs are derived from a hash of the event id, so replaying the
// same backfill file is idempotent: Weaviate upserts by id instead of
// duplicating. Returns the number of objects the batch created or
// updated successfully.
func (s *WeaviateStore) InsertBatch(ctx context.Context, events []EventRecord) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	objects := make([]*models.Object, 0, len(events))
	for _, event := range events {
		if event.EventID == "" {
			event.EventID = uuid.NewString()
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		hash := sha256.Sum256([]byte(event.EventID))
		objUUID, err := uuid.FromBytes(hash[:16])
		if err != nil {
			return 0, fmt.Errorf("deriving object id for event %s: %w", event.EventID, err)
		}

		metadataJSON := "{}"
		if len(event.Metadata) > 0 {
			raw, err := json.Marshal(event.Metadata)
			if err != nil {
				return 0, fmt.Errorf("serializing metadata for event %s: %w", event.EventID, err)
			}
			metadataJSON = string(raw)
		}

		objects = append(objects, &models.Object{
			Class: TelemetryEventClassName,
			ID:    strfmt.UUID(objUUID.String()),
			Properties: map[string]interface{}{
				"eventId":      event.EventID,
				"service":      event.Service,
				"level":        event.Level,
				"message":      event.Message,
				"latencyMs":    event.LatencyMs,
				"timestamp":    event.Timestamp.Format(time.RFC3339Nano),
				"metadataJson": metadataJSON,
			},
		})
	}

	resp, err := s.client.Batch().ObjectsBatcher().
		WithObjects(objects...).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("batch import to Weaviate: %w", err)
	}

	created := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			created++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			slog.Warn("Batch object rejected",
				"class", item.Class,
				"error", item.Result.Errors.Error[0].Message)
		}
	}

	slog.Info("Backfilled telemetry events", "requested", len(events), "created", created)
	return created, nil
}

// RecentErrors returns ERROR-level events from the trailing window,
// oldest first.
func (s *WeaviateStore) RecentErrors(ctx context.Context, window time.Duration) ([]EventRecord, error) {
	cutoff := time.Now().UTC().Add(-window)

	whereFilter := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().
				WithPath([]string{"level"}).
				WithOperator(filters.Equal).
				WithValueString("ERROR"),
			filters.Where().
				WithPath([]string{"timestamp"}).
				WithOperator(filters.GreaterThanEqual).
				WithValueDate(cutoff),
		})

	result, err := s.client.GraphQL().Get().
		WithClassName(TelemetryEventClassName).
		WithFields(eventFields()...).
		WithWhere(whereFilter).
		WithSort(graphql.Sort{Path: []string{"timestamp"}, Order: graphql.Asc}).
		WithLimit(500).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying recent errors: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("recent errors query: %s", result.Errors[0].Message)
	}

	return parseEventRecords(result)
}

// QuerySimilar returns up to limit incidents semantically close to the
// query text, best match first.
func (s *WeaviateStore) QuerySimilar(ctx context.Context, text, service string, limit int) ([]SimilarIncident, error) {
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 3
	}

	nearText := s.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{text})

	query := s.client.GraphQL().Get().
		WithClassName(TelemetryEventClassName).
		WithFields(
			graphql.Field{Name: "message"},
			graphql.Field{Name: "service"},
			graphql.Field{Name: "level"},
			graphql.Field{Name: "latencyMs"},
			graphql.Field{Name: "_additional { certainty }"},
		).
		WithNearText(nearText).
		WithLimit(limit)

	if service != "" {
		query = query.WithWhere(filters.Where().
			WithPath([]string{"service"}).
			WithOperator(filters.Equal).
			WithValueString(service))
	}

	result, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("similar incident search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("similar incident search: %s", result.Errors[0].Message)
	}

	return parseSimilarIncidents(result)
}

// TotalCount returns the number of stored events.
func (s *WeaviateStore) TotalCount(ctx context.Context) (int, error) {
	result, err := s.client.GraphQL().Aggregate().
		WithClassName(TelemetryEventClassName).
		WithFields(graphql.Field{
			Name: "meta",
			Fields: []graphql.Field{
				{Name: "count"},
			},
		}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("aggregate count failed: %w", err)
	}

	return parseAggregateCount(result)
}

// Clear drops the class and recreates it empty.
func (s *WeaviateStore) Clear(ctx context.Context) error {
	if err := DropSchema(ctx, s.client); err != nil {
		return err
	}
	return EnsureSchema(ctx, s.client)
}

func eventFields() []graphql.Field {
	return []graphql.Field{
		{Name: "eventId"},
		{Name: "service"},
		{Name: "level"},
		{Name: "message"},
		{Name: "latencyMs"},
		{Name: "timestamp"},
		{Name: "metadataJson"},
	}
}
