// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes registers the sentinel's HTTP surface.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel/handlers"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/telemetry"
)

// SetupRoutes binds every endpoint onto the router.
func SetupRoutes(router *gin.Engine, deps handlers.Deps) {
	router.GET("/health", handlers.HandleHealth())

	if metricsHandler := telemetry.MetricsHandler(); metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	} else {
		router.GET("/metrics", func(c *gin.Context) {
			c.String(http.StatusNotFound, "metrics exporter disabled")
		})
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/ingest/log", handlers.HandleIngestLog(deps))

		v1.GET("/status", handlers.HandleStatus(deps))
		v1.GET("/status/ws", handlers.HandleStatusWS(deps))

		v1.GET("/remediations", handlers.HandleRemediations(deps))
		v1.DELETE("/remediations", handlers.HandleClearRemediations(deps))

		v1.DELETE("/memory", handlers.HandleMemoryFlush(deps))
		v1.POST("/memory/backfill", handlers.HandleMemoryBackfill(deps))
		v1.GET("/query/similar", handlers.HandleQuerySimilar(deps))

		v1.POST("/graph/observation", handlers.HandleGraphObservation(deps))
		v1.GET("/graph/neighbors", handlers.HandleGraphNeighbors(deps))

		v1.POST("/guardrail/check", handlers.HandleGuardrailCheck(deps))

		v1.POST("/audit/export", handlers.HandleAuditExport(deps))
	}
}
