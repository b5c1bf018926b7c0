// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the sentinel's HTTP request and response
// payloads.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// validate is the shared validator instance for sentinel datatypes.
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// maxMessageBytes bounds a single log line. Larger payloads are
// rejected before they reach the pipeline.
const maxMessageBytes = 32768

// IngestLogRequest is the POST /v1/ingest/log payload.
//
// # Validation
//
// Uses go-playground/validator:
//   - Service: required, 1-128 chars
//   - Level: required, one of DEBUG INFO WARN ERROR
//   - Message: max 32KB
//   - LatencyMs: non-negative
//   - CPU/Memory: 0-100 when present
type IngestLogRequest struct {
	RequestID string             `json:"request_id" validate:"omitempty,uuid4"`
	Timestamp time.Time          `json:"timestamp"`
	Service   string             `json:"service" validate:"required,min=1,max=128"`
	Level     string             `json:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
	Message   string             `json:"message" validate:"max=32768"`
	LatencyMs float64            `json:"latency_ms" validate:"gte=0"`
	Upstream  string             `json:"upstream,omitempty" validate:"omitempty,max=128"`
	CPU       float64            `json:"cpu,omitempty" validate:"gte=0,lte=100"`
	Memory    float64            `json:"memory,omitempty" validate:"gte=0,lte=100"`
	Metadata  map[string]float64 `json:"metadata,omitempty"`
}

// Validate checks the request after JSON binding.
func (r *IngestLogRequest) Validate() error {
	return validate.Struct(r)
}

// EnsureDefaults populates RequestID and Timestamp when the client
// omitted them.
func (r *IngestLogRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
}

// BackfillRequest is the POST /v1/memory/backfill payload: historical
// events written straight into incident memory, bypassing the live
// pipeline.
type BackfillRequest struct {
	Events []IngestLogRequest `json:"events" validate:"required,min=1,max=1000,dive"`
}

func (r *BackfillRequest) Validate() error {
	return validate.Struct(r)
}

// GraphObservationRequest is the POST /v1/graph/observation payload.
type GraphObservationRequest struct {
	From      string    `json:"from" validate:"required,min=1,max=128"`
	To        string    `json:"to" validate:"required,min=1,max=128"`
	Timestamp time.Time `json:"timestamp"`
	LatencyMs float64   `json:"latency_ms" validate:"gte=0"`
	CPU       float64   `json:"cpu,omitempty" validate:"gte=0,lte=100"`
	Memory    float64   `json:"memory,omitempty" validate:"gte=0,lte=100"`
}

func (r *GraphObservationRequest) Validate() error {
	return validate.Struct(r)
}

func (r *GraphObservationRequest) EnsureDefaults() {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
}

// GuardrailCheckRequest is the POST /v1/guardrail/check payload.
type GuardrailCheckRequest struct {
	Command string `json:"command" validate:"required,min=1,max=4096"`
}

func (r *GuardrailCheckRequest) Validate() error {
	return validate.Struct(r)
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is the GET /v1/status payload.
type StatusResponse struct {
	Running          bool   `json:"running"`
	Processed        uint64 `json:"processed"`
	Errors           uint64 `json:"errors"`
	Remediations     uint64 `json:"remediations"`
	Dropped          uint64 `json:"dropped"`
	Blocked          uint64 `json:"blocked"`
	AnalysisCycles   uint64 `json:"analysis_cycles"`
	DegradedDiags    uint64 `json:"degraded_diagnoses"`
	RawQueueDepth    int    `json:"raw_queue_depth"`
	ActionQueueDepth int    `json:"action_queue_depth"`
	VectorCount      int    `json:"vector_count"`
	GraphNodes       int    `json:"graph_nodes"`
	GraphEdges       int    `json:"graph_edges"`
}

// IngestResponse acknowledges an accepted event.
type IngestResponse struct {
	RequestID string `json:"request_id"`
	Accepted  bool   `json:"accepted"`
}

// ExportResponse reports a completed audit snapshot upload.
type ExportResponse struct {
	Bucket string `json:"bucket"`
	Object string `json:"object"`
}
