// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diagnosis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianSentinel/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("aleutian.sentinel.diagnosis")

// LLMDiagnostician implements Diagnostician against any llm.LLMClient.
//
// # Description
//
// Builds a structured prompt from the incident context, requests a JSON
// diagnosis, parses it, and normalizes the recommended action against
// the whitelist. A token-bucket rate limiter caps LLM spend; a request
// arriving with no token available degrades immediately instead of
// queueing.
//
// # Thread Safety
//
// Safe for concurrent use.
type LLMDiagnostician struct {
	client  llm.LLMClient
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ Diagnostician = (*LLMDiagnostician)(nil)

// DiagnosticianConfig tunes the LLM diagnostician.
type DiagnosticianConfig struct {
	// RequestsPerMinute caps diagnosis calls. Default: 10.
	RequestsPerMinute int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewLLMDiagnostician creates a diagnostician over the given backend.
func NewLLMDiagnostician(client llm.LLMClient, cfg DiagnosticianConfig) (*LLMDiagnostician, error) {
	if client == nil {
		return nil, errors.New("diagnosis: llm client must not be nil")
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &LLMDiagnostician{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute),
		logger:  cfg.Logger,
	}, nil
}

// Diagnose requests a structured diagnosis for the incident.
//
// Every failure mode except context cancellation returns a degraded
// zero-confidence page-human diagnosis with a nil error.
func (d *LLMDiagnostician) Diagnose(ctx context.Context, incident IncidentContext) (Diagnosis, error) {
	ctx, span := tracer.Start(ctx, "LLMDiagnostician.Diagnose")
	defer span.End()
	span.SetAttributes(attribute.String("incident.service", incident.Service))

	if err := ctx.Err(); err != nil {
		return Diagnosis{}, err
	}

	if !d.limiter.Allow() {
		d.logger.Warn("diagnosis rate limit hit, degrading", "service", incident.Service)
		return d.degraded(incident, "diagnosis rate limit exceeded"), nil
	}

	temperature := float32(0.1)
	maxTokens := 512
	raw, err := d.client.Generate(ctx, buildPrompt(incident), llm.GenerationParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Diagnosis{}, err
		}
		d.logger.Error("diagnosis call failed, degrading", "service", incident.Service, "error", err)
		return d.degraded(incident, fmt.Sprintf("llm call failed: %v", err)), nil
	}

	diag, err := parseDiagnosis(raw)
	if err != nil {
		d.logger.Error("diagnosis response unparseable, degrading",
			"service", incident.Service, "error", err)
		return d.degraded(incident, fmt.Sprintf("unparseable diagnosis: %v", err)), nil
	}

	if diag.AffectedService == "" {
		diag.AffectedService = incident.Service
	}
	diag.RecommendedAction = normalizeAction(diag.RecommendedAction)
	diag.Confidence = clamp01(diag.Confidence)

	span.SetAttributes(
		attribute.Float64("diagnosis.confidence", diag.Confidence),
		attribute.String("diagnosis.action", diag.RecommendedAction),
	)
	return diag, nil
}

// degraded synthesizes the human-escalation result.
func (d *LLMDiagnostician) degraded(incident IncidentContext, cause string) Diagnosis {
	return Diagnosis{
		RootCause:         "Diagnosis unavailable: " + cause,
		Confidence:        0.0,
		AffectedService:   incident.Service,
		RecommendedAction: ActionPageHuman,
		Reasoning:         "Check LLM connectivity, API keys, or rate limits",
		Degraded:          true,
	}
}

// parseDiagnosis extracts the JSON object from the model output. Models
// occasionally wrap JSON in code fences or prose; take the outermost
// braces.
func parseDiagnosis(raw string) (Diagnosis, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Diagnosis{}, fmt.Errorf("no JSON object in response")
	}

	var diag Diagnosis
	if err := json.Unmarshal([]byte(raw[start:end+1]), &diag); err != nil {
		return Diagnosis{}, fmt.Errorf("decode diagnosis: %w", err)
	}
	return diag, nil
}

// normalizeAction maps an arbitrary model suggestion onto the whitelist.
func normalizeAction(action string) string {
	normalized := strings.ToLower(strings.TrimSpace(action))
	if _, ok := actionWhitelist[normalized]; ok {
		return normalized
	}
	return ActionPageHuman
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
