// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSentinel/services/causal"
	"github.com/AleutianAI/AleutianSentinel/services/diagnosis"
	"github.com/AleutianAI/AleutianSentinel/services/guardrail"
	"github.com/AleutianAI/AleutianSentinel/services/memory"
	"github.com/AleutianAI/AleutianSentinel/services/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubDiagnostician struct{}

func (stubDiagnostician) Diagnose(_ context.Context, _ diagnosis.IncidentContext) (diagnosis.Diagnosis, error) {
	return diagnosis.Diagnosis{}, nil
}

// newTestDeps builds handler deps around a real, unstarted controller.
// Store, Journal, and Exporter stay nil so the 503 paths are reachable.
func newTestDeps(t *testing.T, rawQueueSize int) Deps {
	t.Helper()

	graph := causal.NewTemporalGraph(causal.DefaultGraphConfig())
	guard := guardrail.New(guardrail.DefaultPolicy())

	controller, err := pipeline.NewController(pipeline.Config{
		RawQueueSize: rawQueueSize,
	}, pipeline.Deps{
		Graph:         graph,
		Diagnostician: stubDiagnostician{},
		Guard:         guard,
		Model:         causal.NewMeanDifferenceModel(),
	})
	require.NoError(t, err)

	return Deps{
		Controller: controller,
		Graph:      graph,
		Guard:      guard,
	}
}

func performJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleHealth(t *testing.T) {
	router := gin.New()
	router.GET("/health", HandleHealth())

	rec := performJSON(t, router, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestHandleIngestLog(t *testing.T) {
	t.Run("valid event is accepted", func(t *testing.T) {
		deps := newTestDeps(t, 10)
		router := gin.New()
		router.POST("/v1/ingest/log", HandleIngestLog(deps))

		rec := performJSON(t, router, http.MethodPost, "/v1/ingest/log", gin.H{
			"service":    "payment-db",
			"level":      "ERROR",
			"message":    "Request timeout",
			"latency_ms": 250.0,
		})

		assert.Equal(t, http.StatusAccepted, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["accepted"])
		assert.NotEmpty(t, body["request_id"])
	})

	t.Run("invalid level is rejected", func(t *testing.T) {
		deps := newTestDeps(t, 10)
		router := gin.New()
		router.POST("/v1/ingest/log", HandleIngestLog(deps))

		rec := performJSON(t, router, http.MethodPost, "/v1/ingest/log", gin.H{
			"service": "payment-db",
			"level":   "FATAL",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing service is rejected", func(t *testing.T) {
		deps := newTestDeps(t, 10)
		router := gin.New()
		router.POST("/v1/ingest/log", HandleIngestLog(deps))

		rec := performJSON(t, router, http.MethodPost, "/v1/ingest/log", gin.H{
			"level": "INFO",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed JSON is rejected", func(t *testing.T) {
		deps := newTestDeps(t, 10)
		router := gin.New()
		router.POST("/v1/ingest/log", HandleIngestLog(deps))

		req := httptest.NewRequest(http.MethodPost, "/v1/ingest/log", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("full queue answers 429", func(t *testing.T) {
		// The controller is never started, so nothing drains the queue.
		deps := newTestDeps(t, 1)
		router := gin.New()
		router.POST("/v1/ingest/log", HandleIngestLog(deps))

		payload := gin.H{"service": "api-gateway", "level": "INFO", "message": "ok"}
		first := performJSON(t, router, http.MethodPost, "/v1/ingest/log", payload)
		second := performJSON(t, router, http.MethodPost, "/v1/ingest/log", payload)

		assert.Equal(t, http.StatusAccepted, first.Code)
		assert.Equal(t, http.StatusTooManyRequests, second.Code)
		assert.Equal(t, false, decodeBody(t, second)["accepted"])
	})
}

func TestHandleStatus(t *testing.T) {
	deps := newTestDeps(t, 10)
	require.NoError(t, deps.Graph.AddObservation("api-gateway", "user-service", causal.Observation{
		Timestamp: time.Now().UTC(),
		LatencyMs: 42,
	}))

	router := gin.New()
	router.GET("/v1/status", HandleStatus(deps))

	rec := performJSON(t, router, http.MethodGet, "/v1/status", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["running"])
	assert.Equal(t, float64(0), body["processed"])
	assert.Equal(t, float64(0), body["vector_count"])
	assert.Equal(t, float64(2), body["graph_nodes"])
	assert.Equal(t, float64(1), body["graph_edges"])
}

func TestHandleRemediations(t *testing.T) {
	deps := newTestDeps(t, 10)
	router := gin.New()
	router.GET("/v1/remediations", HandleRemediations(deps))
	router.DELETE("/v1/remediations", HandleClearRemediations(deps))

	rec := performJSON(t, router, http.MethodGet, "/v1/remediations", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["count"])
	assert.NotNil(t, body["remediations"])

	rec = performJSON(t, router, http.MethodDelete, "/v1/remediations", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["cleared"])
}

func TestHandleMemoryFlush_NoStore(t *testing.T) {
	deps := newTestDeps(t, 10)
	router := gin.New()
	router.DELETE("/v1/memory", HandleMemoryFlush(deps))

	rec := performJSON(t, router, http.MethodDelete, "/v1/memory", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// fakeBatchStore records what InsertBatch receives. The plain Store
// methods are stubs; backfill never calls them.
type fakeBatchStore struct {
	memory.Store
	inserted []memory.EventRecord
}

func (f *fakeBatchStore) InsertBatch(_ context.Context, events []memory.EventRecord) (int, error) {
	f.inserted = append(f.inserted, events...)
	return len(events), nil
}

func TestHandleMemoryBackfill(t *testing.T) {
	t.Run("no store answers 503", func(t *testing.T) {
		deps := newTestDeps(t, 10)
		router := gin.New()
		router.POST("/v1/memory/backfill", HandleMemoryBackfill(deps))

		rec := performJSON(t, router, http.MethodPost, "/v1/memory/backfill", gin.H{
			"events": []gin.H{{"service": "payment-db", "level": "ERROR"}},
		})

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("events reach the batch inserter", func(t *testing.T) {
		store := &fakeBatchStore{}
		deps := newTestDeps(t, 10)
		deps.Store = store
		router := gin.New()
		router.POST("/v1/memory/backfill", HandleMemoryBackfill(deps))

		rec := performJSON(t, router, http.MethodPost, "/v1/memory/backfill", gin.H{
			"events": []gin.H{
				{"service": "payment-db", "level": "ERROR", "message": "lock contention", "latency_ms": 240.0},
				{"service": "user-service", "level": "WARN", "message": "slow upstream", "latency_ms": 120.0},
			},
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(2), body["requested"])
		assert.Equal(t, float64(2), body["created"])

		require.Len(t, store.inserted, 2)
		assert.Equal(t, "payment-db", store.inserted[0].Service)
		assert.NotEmpty(t, store.inserted[0].EventID)
		assert.False(t, store.inserted[0].Timestamp.IsZero())
	})

	t.Run("empty batch is rejected", func(t *testing.T) {
		deps := newTestDeps(t, 10)
		deps.Store = &fakeBatchStore{}
		router := gin.New()
		router.POST("/v1/memory/backfill", HandleMemoryBackfill(deps))

		rec := performJSON(t, router, http.MethodPost, "/v1/memory/backfill", gin.H{
			"events": []gin.H{},
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid event is rejected", func(t *testing.T) {
		deps := newTestDeps(t, 10)
		deps.Store = &fakeBatchStore{}
		router := gin.New()
		router.POST("/v1/memory/backfill", HandleMemoryBackfill(deps))

		rec := performJSON(t, router, http.MethodPost, "/v1/memory/backfill", gin.H{
			"events": []gin.H{{"service": "payment-db", "level": "FATAL"}},
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleQuerySimilar_NoStore(t *testing.T) {
	deps := newTestDeps(t, 10)
	router := gin.New()
	router.GET("/v1/query/similar", HandleQuerySimilar(deps))

	rec := performJSON(t, router, http.MethodGet, "/v1/query/similar?text=timeout", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleAuditExport_NotConfigured(t *testing.T) {
	deps := newTestDeps(t, 10)
	router := gin.New()
	router.POST("/v1/audit/export", HandleAuditExport(deps))

	rec := performJSON(t, router, http.MethodPost, "/v1/audit/export", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleGuardrailCheck(t *testing.T) {
	deps := newTestDeps(t, 10)
	router := gin.New()
	router.POST("/v1/guardrail/check", HandleGuardrailCheck(deps))

	t.Run("safe command", func(t *testing.T) {
		rec := performJSON(t, router, http.MethodPost, "/v1/guardrail/check", gin.H{
			"command": "kubectl scale deployment/payment-db --replicas=3",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["safe"])
	})

	t.Run("forbidden command", func(t *testing.T) {
		rec := performJSON(t, router, http.MethodPost, "/v1/guardrail/check", gin.H{
			"command": "kubectl rollout restart deployment/payment-db",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["safe"])
		assert.NotEmpty(t, body["issues"])
	})

	t.Run("missing command", func(t *testing.T) {
		rec := performJSON(t, router, http.MethodPost, "/v1/guardrail/check", gin.H{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleGraphObservationAndNeighbors(t *testing.T) {
	deps := newTestDeps(t, 10)
	router := gin.New()
	router.POST("/v1/graph/observation", HandleGraphObservation(deps))
	router.GET("/v1/graph/neighbors", HandleGraphNeighbors(deps))

	rec := performJSON(t, router, http.MethodPost, "/v1/graph/observation", gin.H{
		"from":       "payment-db",
		"to":         "user-service",
		"latency_ms": 180.0,
		"cpu":        62.0,
		"memory":     40.0,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = performJSON(t, router, http.MethodGet, "/v1/graph/neighbors?service=user-service", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "user-service", body["service"])
	assert.Equal(t, float64(300), body["window_seconds"])

	neighbors, ok := body["neighbors"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, neighbors, "payment-db")

	t.Run("missing service parameter", func(t *testing.T) {
		rec := performJSON(t, router, http.MethodGet, "/v1/graph/neighbors", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing from field", func(t *testing.T) {
		rec := performJSON(t, router, http.MethodPost, "/v1/graph/observation", gin.H{
			"to": "user-service",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestIntQuery(t *testing.T) {
	router := gin.New()
	router.GET("/probe", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"value": intQuery(c, "limit", 3)})
	})

	cases := []struct {
		name  string
		query string
		want  float64
	}{
		{"absent uses fallback", "", 3},
		{"valid value parses", "?limit=7", 7},
		{"garbage uses fallback", "?limit=abc", 3},
		{"non-positive uses fallback", "?limit=-2", 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := performJSON(t, router, http.MethodGet, "/probe"+tc.query, nil)
			assert.Equal(t, tc.want, decodeBody(t, rec)["value"])
		})
	}
}
