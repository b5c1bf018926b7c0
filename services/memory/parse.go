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
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/weaviate/weaviate/entities/models"
)

// parseEventRecords walks the GraphQL Get response for TelemetryEvent
// objects. Weaviate returns loosely typed maps; a malformed object is
// skipped with a warning rather than failing the whole query.
func parseEventRecords(result *models.GraphQLResponse) ([]EventRecord, error) {
	objects := classObjects(result, TelemetryEventClassName)

	records := make([]EventRecord, 0, len(objects))
	for _, raw := range objects {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			slog.Warn("Skipping malformed event object in query response")
			continue
		}

		record := EventRecord{
			EventID:   getString(obj, "eventId"),
			Service:   getString(obj, "service"),
			Level:     getString(obj, "level"),
			Message:   getString(obj, "message"),
			LatencyMs: getFloat64(obj, "latencyMs"),
		}

		if ts := getString(obj, "timestamp"); ts != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				record.Timestamp = parsed
			}
		}

		if metaJSON := getString(obj, "metadataJson"); metaJSON != "" && metaJSON != "{}" {
			meta := make(map[string]float64)
			if err := json.Unmarshal([]byte(metaJSON), &meta); err == nil {
				record.Metadata = meta
			}
		}

		records = append(records, record)
	}
	return records, nil
}

// parseSimilarIncidents walks the GraphQL Get response for a nearText
// search, pulling certainty from the _additional block.
func parseSimilarIncidents(result *models.GraphQLResponse) ([]SimilarIncident, error) {
	objects := classObjects(result, TelemetryEventClassName)

	incidents := make([]SimilarIncident, 0, len(objects))
	for _, raw := range objects {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}

		incident := SimilarIncident{
			Message:   getString(obj, "message"),
			Service:   getString(obj, "service"),
			Level:     getString(obj, "level"),
			LatencyMs: getFloat64(obj, "latencyMs"),
		}
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			incident.Score = getFloat64(additional, "certainty")
		}
		incidents = append(incidents, incident)
	}
	return incidents, nil
}

// parseAggregateCount extracts meta.count from an Aggregate response.
func parseAggregateCount(result *models.GraphQLResponse) (int, error) {
	jsonBytes, err := json.Marshal(result.Data)
	if err != nil {
		return 0, fmt.Errorf("marshal aggregate response: %w", err)
	}

	var response struct {
		Aggregate struct {
			TelemetryEvent []struct {
				Meta struct {
					Count float64 `json:"count"`
				} `json:"meta"`
			} `json:"TelemetryEvent"`
		} `json:"Aggregate"`
	}
	if err := json.Unmarshal(jsonBytes, &response); err != nil {
		return 0, fmt.Errorf("parse aggregate response: %w", err)
	}

	if len(response.Aggregate.TelemetryEvent) == 0 {
		return 0, nil
	}
	return int(response.Aggregate.TelemetryEvent[0].Meta.Count), nil
}

// classObjects digs the object list for one class out of a Get response.
func classObjects(result *models.GraphQLResponse, className string) []interface{} {
	get, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := get[className].([]interface{})
	if !ok {
		return nil
	}
	return objects
}

func getString(obj map[string]interface{}, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}

func getFloat64(obj map[string]interface{}, key string) float64 {
	switch v := obj[key].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	case int:
		return float64(v)
	}
	return 0
}
