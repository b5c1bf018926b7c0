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
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// GetTelemetryEventSchema returns the Weaviate class definition for
// ingested telemetry events.
//
// Only the message is vectorized; every other property is a filterable
// scalar. Metadata is stored as a JSON blob because its key set is open.
func GetTelemetryEventSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	indexSearchable := new(bool)
	*indexSearchable = true

	return &models.Class{
		Class:       TelemetryEventClassName,
		Description: "Enriched microservice telemetry events for RCA",
		Vectorizer:  "text2vec-transformers",
		ModuleConfig: map[string]interface{}{
			"text2vec-transformers": map[string]interface{}{
				"vectorizeClassName": false,
			},
		},
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "eventId",
				DataType:        []string{"text"},
				Description:     "Unique identifier (UUID)",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
				ModuleConfig:    skipVectorization(),
			},
			{
				Name:            "service",
				DataType:        []string{"text"},
				Description:     "Emitting service id",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
				ModuleConfig:    skipVectorization(),
			},
			{
				Name:            "level",
				DataType:        []string{"text"},
				Description:     "Log level: INFO, WARNING, ERROR, DEBUG",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
				ModuleConfig:    skipVectorization(),
			},
			{
				Name:            "message",
				DataType:        []string{"text"},
				Description:     "Log line, vectorized for similar-incident search",
				IndexSearchable: indexSearchable,
				Tokenization:    "word",
			},
			{
				Name:         "latencyMs",
				DataType:     []string{"number"},
				Description:  "Request latency in milliseconds",
				ModuleConfig: skipVectorization(),
			},
			{
				Name:            "timestamp",
				DataType:        []string{"date"},
				Description:     "Event production time",
				IndexFilterable: indexFilterable,
				ModuleConfig:    skipVectorization(),
			},
			{
				Name:         "metadataJson",
				DataType:     []string{"text"},
				Description:  "Open metadata mapping serialized as JSON",
				Tokenization: "field",
				ModuleConfig: skipVectorization(),
			},
		},
	}
}

func skipVectorization() map[string]interface{} {
	return map[string]interface{}{
		"text2vec-transformers": map[string]interface{}{
			"skip": true,
		},
	}
}

// EnsureSchema creates the telemetry event class if it does not exist.
func EnsureSchema(ctx context.Context, client *weaviate.Client) error {
	if client == nil {
		return ErrNilClient
	}

	_, err := client.Schema().ClassGetter().
		WithClassName(TelemetryEventClassName).
		Do(ctx)
	if err == nil {
		slog.Debug("Weaviate class already exists", "class", TelemetryEventClassName)
		return nil
	}

	if err := client.Schema().ClassCreator().
		WithClass(GetTelemetryEventSchema()).
		Do(ctx); err != nil {
		return fmt.Errorf("creating class %s: %w", TelemetryEventClassName, err)
	}

	slog.Info("Created Weaviate class", "class", TelemetryEventClassName)
	return nil
}

// DropSchema deletes the telemetry event class and all of its objects.
func DropSchema(ctx context.Context, client *weaviate.Client) error {
	if client == nil {
		return ErrNilClient
	}
	if err := client.Schema().ClassDeleter().
		WithClassName(TelemetryEventClassName).
		Do(ctx); err != nil {
		return fmt.Errorf("deleting class %s: %w", TelemetryEventClassName, err)
	}
	return nil
}
