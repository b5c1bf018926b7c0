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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianSentinel/services/causal"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/datatypes"
)

// defaultNeighborWindow is used when the caller omits window_seconds.
const defaultNeighborWindow = 5 * time.Minute

// HandleGraphObservation records one service-to-service observation
// directly into the temporal graph, bypassing the pipeline. Used by
// collectors that report call edges rather than log lines.
func HandleGraphObservation(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.GraphObservationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid JSON payload"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		obs := causal.Observation{
			Timestamp: req.Timestamp,
			LatencyMs: req.LatencyMs,
		}
		if req.CPU > 0 || req.Memory > 0 {
			obs.CPUFrom = req.CPU
			obs.MemFrom = req.Memory
			obs.HasResources = true
		}

		if err := deps.Graph.AddObservation(req.From, req.To, obs); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"recorded": true})
	}
}

// HandleGraphNeighbors returns time-windowed upstream observations for
// a service.
//
// Query params: service (required), window_seconds (optional,
// default 300).
func HandleGraphNeighbors(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		service := c.Query("service")
		if service == "" {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "service query parameter is required"})
			return
		}

		window := defaultNeighborWindow
		if seconds := intQuery(c, "window_seconds", 0); seconds > 0 {
			window = time.Duration(seconds) * time.Second
		}

		neighbors, err := deps.Graph.GetCausalNeighbors(service, window, time.Now().UTC())
		if err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		if neighbors == nil {
			neighbors = map[string][]causal.Observation{}
		}
		c.JSON(http.StatusOK, gin.H{
			"service":        service,
			"window_seconds": int(window.Seconds()),
			"neighbors":      neighbors,
		})
	}
}

// HandleGuardrailCheck classifies a proposed command without executing
// anything.
func HandleGuardrailCheck(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.GuardrailCheckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid JSON payload"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		verdict := deps.Guard.Check(req.Command)
		c.JSON(http.StatusOK, verdict)
	}
}
