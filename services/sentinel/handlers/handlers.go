// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the sentinel's HTTP endpoints.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianSentinel/services/audit"
	"github.com/AleutianAI/AleutianSentinel/services/causal"
	"github.com/AleutianAI/AleutianSentinel/services/guardrail"
	"github.com/AleutianAI/AleutianSentinel/services/memory"
	"github.com/AleutianAI/AleutianSentinel/services/pipeline"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/datatypes"
)

// Deps are the shared collaborators handlers close over. Store,
// Journal and Exporter may be nil; the affected endpoints answer 503.
type Deps struct {
	Controller *pipeline.Controller
	Graph      *causal.TemporalGraph
	Guard      *guardrail.Guardrail
	Store      memory.Store
	Journal    *audit.Journal
	Exporter   *audit.Exporter
	Logger     *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// HandleHealth reports liveness.
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// HandleIngestLog accepts one telemetry event into the pipeline.
//
// Returns 202 when queued and 429 when backpressure dropped the event;
// the drop is already counted in pipeline stats either way.
func HandleIngestLog(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.IngestLogRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid JSON payload"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		event := pipeline.LogEvent{
			Timestamp: req.Timestamp,
			Service:   req.Service,
			Level:     pipeline.Level(req.Level),
			Message:   req.Message,
			LatencyMs: req.LatencyMs,
			Upstream:  req.Upstream,
			CPU:       req.CPU,
			Memory:    req.Memory,
			Metadata:  req.Metadata,
		}

		if !deps.Controller.Submit(event) {
			c.JSON(http.StatusTooManyRequests, datatypes.IngestResponse{
				RequestID: req.RequestID,
				Accepted:  false,
			})
			return
		}
		c.JSON(http.StatusAccepted, datatypes.IngestResponse{
			RequestID: req.RequestID,
			Accepted:  true,
		})
	}
}

// HandleRemediations returns the in-memory remediation history,
// oldest first.
func HandleRemediations(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		history := deps.Controller.History()
		if history == nil {
			history = []audit.Record{}
		}
		c.JSON(http.StatusOK, gin.H{"remediations": history, "count": len(history)})
	}
}

// HandleClearRemediations empties the remediation history ring. The
// durable journal keeps its records.
func HandleClearRemediations(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		deps.Controller.ClearHistory()
		deps.logger().Info("remediation history cleared by operator")
		c.JSON(http.StatusOK, gin.H{"cleared": true})
	}
}

// HandleMemoryFlush drops every stored event and resets pipeline
// counters.
func HandleMemoryFlush(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Store == nil {
			c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{Error: "memory store not configured"})
			return
		}
		if err := deps.Store.Clear(c.Request.Context()); err != nil {
			deps.logger().Error("memory flush failed", "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "memory flush failed"})
			return
		}
		deps.Controller.ResetStats()
		deps.logger().Info("memory store flushed by operator")
		c.JSON(http.StatusOK, gin.H{"flushed": true})
	}
}

// HandleMemoryBackfill bulk-loads historical events into incident
// memory so a fresh deployment starts with context. The events do not
// pass through the live pipeline; no analysis runs on them.
func HandleMemoryBackfill(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		inserter, ok := deps.Store.(memory.BatchInserter)
		if deps.Store == nil || !ok {
			c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{Error: "memory store not configured"})
			return
		}

		var req datatypes.BackfillRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid JSON payload"})
			return
		}
		for i := range req.Events {
			req.Events[i].EnsureDefaults()
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		records := make([]memory.EventRecord, len(req.Events))
		for i, event := range req.Events {
			records[i] = memory.EventRecord{
				EventID:   event.RequestID,
				Timestamp: event.Timestamp,
				Service:   event.Service,
				Level:     event.Level,
				LatencyMs: event.LatencyMs,
				Message:   event.Message,
				Metadata:  event.Metadata,
			}
		}

		created, err := inserter.InsertBatch(c.Request.Context(), records)
		if err != nil {
			deps.logger().Error("memory backfill failed", "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "backfill failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"requested": len(records), "created": created})
	}
}

// HandleQuerySimilar runs a semantic search over stored incidents.
//
// Query params: text (required), service (optional), limit (optional).
func HandleQuerySimilar(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Store == nil {
			c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{Error: "memory store not configured"})
			return
		}
		text := c.Query("text")
		if text == "" {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "text query parameter is required"})
			return
		}
		limit := intQuery(c, "limit", 3)

		incidents, err := deps.Store.QuerySimilar(c.Request.Context(), text, c.Query("service"), limit)
		if err != nil {
			deps.logger().Error("similar incident query failed", "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "query failed"})
			return
		}
		if incidents == nil {
			incidents = []memory.SimilarIncident{}
		}
		c.JSON(http.StatusOK, gin.H{"incidents": incidents, "count": len(incidents)})
	}
}

// HandleAuditExport snapshots the remediation journal to GCS.
func HandleAuditExport(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Exporter == nil || deps.Journal == nil {
			c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{Error: "audit export not configured"})
			return
		}
		object, err := deps.Exporter.Export(c.Request.Context(), deps.Journal)
		if err != nil {
			deps.logger().Error("audit export failed", "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "export failed"})
			return
		}
		c.JSON(http.StatusOK, datatypes.ExportResponse{
			Bucket: deps.Exporter.Bucket(),
			Object: object,
		})
	}
}
