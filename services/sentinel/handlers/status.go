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
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/singleflight"
)

// vectorCountGroup dedups concurrent vector-count aggregates: the
// status endpoint and its websocket variant can be polled by several
// dashboards at once, and one weaviate aggregate per burst is enough.
var vectorCountGroup singleflight.Group

// statusWSInterval is the push cadence of the websocket status stream.
const statusWSInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// HandleStatus reports pipeline counters, queue depths, vector count,
// and graph size.
func HandleStatus(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, buildStatus(c.Request.Context(), deps))
	}
}

// HandleStatusWS streams the status snapshot over a websocket until
// the client disconnects.
func HandleStatusWS(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			deps.logger().Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		ticker := time.NewTicker(statusWSInterval)
		defer ticker.Stop()

		// Send one snapshot immediately so the client does not wait a
		// full tick for its first frame.
		if err := ws.WriteJSON(buildStatus(c.Request.Context(), deps)); err != nil {
			return
		}
		for {
			select {
			case <-c.Request.Context().Done():
				return
			case <-ticker.C:
				if err := ws.WriteJSON(buildStatus(c.Request.Context(), deps)); err != nil {
					deps.logger().Debug("status websocket closed", "error", err)
					return
				}
			}
		}
	}
}

func buildStatus(ctx context.Context, deps Deps) map[string]interface{} {
	snap := deps.Controller.Snapshot()
	graphStats := deps.Graph.Stats()

	vectorCount := 0
	if deps.Store != nil {
		v, err, _ := vectorCountGroup.Do("vector_count", func() (interface{}, error) {
			return deps.Store.TotalCount(ctx)
		})
		if err != nil {
			deps.logger().Debug("vector count lookup failed", "error", err)
		} else {
			vectorCount = v.(int)
		}
	}

	return map[string]interface{}{
		"running":            snap.Running,
		"processed":          snap.Processed,
		"errors":             snap.Errors,
		"remediations":       snap.Remediations,
		"dropped":            snap.Dropped,
		"blocked":            snap.Blocked,
		"analysis_cycles":    snap.AnalysisCycles,
		"degraded_diagnoses": snap.DegradedDiags,
		"raw_queue_depth":    snap.RawQueueDepth,
		"action_queue_depth": snap.ActionQueueDepth,
		"vector_count":       vectorCount,
		"graph_nodes":        graphStats.Nodes,
		"graph_edges":        graphStats.Edges,
	}
}

// intQuery parses an integer query parameter with a fallback.
func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
