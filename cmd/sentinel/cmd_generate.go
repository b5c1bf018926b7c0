// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSentinel/pkg/ux"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/datatypes"
)

var (
	generateServer        string
	generateInterval      time.Duration
	generateDuration      time.Duration
	generateIncidentAfter time.Duration

	generateCmd = &cobra.Command{
		Use:   "generate",
		Short: "Send synthetic microservice telemetry to a running sentinel",
		Long: `Simulates a small service fleet where database lock contention on
payment-db propagates through pool exhaustion into latency and timeouts
downstream. After --incident-after the lock contention spikes, which
should drive the pipeline through detection, diagnosis, and a proposed
remediation.`,
		Run: runGenerate,
	}
)

func init() {
	generateCmd.Flags().StringVar(&generateServer, "server", "http://localhost:12400", "Sentinel base URL")
	generateCmd.Flags().DurationVar(&generateInterval, "interval", time.Second, "Delay between fleet ticks")
	generateCmd.Flags().DurationVar(&generateDuration, "duration", 0, "Total run time (0 = until interrupted)")
	generateCmd.Flags().DurationVar(&generateIncidentAfter, "incident-after", 30*time.Second, "When the db lock incident begins (0 = immediately)")
	rootCmd.AddCommand(generateCmd)
}

// serviceProfile describes one member of the synthetic fleet. Latency
// flows downstream: a service inherits a share of its upstream
// dependency's latency on top of its own base.
type serviceProfile struct {
	name        string
	upstream    string
	baseLatency float64
}

var fleet = []serviceProfile{
	{name: "payment-db", baseLatency: 30},
	{name: "redis-cache", baseLatency: 5},
	{name: "user-service", upstream: "payment-db", baseLatency: 45},
	{name: "notification-svc", upstream: "user-service", baseLatency: 25},
	{name: "api-gateway", upstream: "user-service", baseLatency: 60},
}

func runGenerate(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if generateDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, generateDuration)
		defer cancel()
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	client := &http.Client{Timeout: 5 * time.Second}
	start := time.Now()

	ux.Title("Synthetic telemetry generator")
	ux.Info(fmt.Sprintf("target: %s", generateServer))
	if generateIncidentAfter > 0 {
		ux.Info(fmt.Sprintf("db lock incident begins in %s", generateIncidentAfter))
	} else {
		ux.Warning("db lock incident active from the start")
	}

	ticker := time.NewTicker(generateInterval)
	defer ticker.Stop()

	var sent, dropped, failed int
	for {
		select {
		case <-ctx.Done():
			ux.Muted(fmt.Sprintf("sent=%d dropped=%d failed=%d", sent, dropped, failed))
			return
		case <-ticker.C:
			incident := time.Since(start) >= generateIncidentAfter
			for _, event := range fleetTick(rng, incident) {
				switch postEvent(ctx, client, event) {
				case http.StatusAccepted:
					sent++
				case http.StatusTooManyRequests:
					dropped++
				default:
					failed++
				}
			}
		}
	}
}

// fleetTick produces one event per service. Lock contention on
// payment-db drives pool wait, pool wait drives latency, and latency
// past 200ms drives timeout probability through a sigmoid.
func fleetTick(rng *rand.Rand, incident bool) []datatypes.IngestLogRequest {
	dbLock := rng.Float64() * 0.2
	if incident {
		dbLock = 1.5 + rng.Float64()*1.5
	}
	poolWait := 50 * dbLock

	latencies := map[string]float64{}
	events := make([]datatypes.IngestLogRequest, 0, len(fleet))
	for _, svc := range fleet {
		latency := svc.baseLatency + rng.Float64()*20
		if svc.name == "payment-db" {
			latency += 2 * poolWait
		}
		if svc.upstream != "" {
			latency += 0.8 * latencies[svc.upstream]
		}
		latencies[svc.name] = latency

		errProb := 1 / (1 + math.Exp(-(latency-200)/25))
		level := "INFO"
		message := fmt.Sprintf("Request completed in %.0fms", latency)
		if rng.Float64() < errProb {
			level = "ERROR"
			message = "Request timeout"
		}

		cpu := 25 + rng.Float64()*20
		if incident && svc.name == "payment-db" {
			cpu += 30
		}

		event := datatypes.IngestLogRequest{
			Timestamp: time.Now().UTC(),
			Service:   svc.name,
			Level:     level,
			Message:   message,
			LatencyMs: latency,
			Upstream:  svc.upstream,
			CPU:       cpu,
			Memory:    30 + rng.Float64()*25,
		}
		if svc.name == "payment-db" {
			event.Metadata = map[string]float64{
				"db_lock_time": dbLock,
				"pool_wait_ms": poolWait,
			}
		}
		events = append(events, event)
	}
	return events
}

func postEvent(ctx context.Context, client *http.Client, event datatypes.IngestLogRequest) int {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error encoding event: %v", err)
		return 0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		generateServer+"/v1/ingest/log", bytes.NewReader(payload))
	if err != nil {
		log.Printf("Error building request: %v", err)
		return 0
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("Error sending event: %v", err)
		}
		return 0
	}
	defer resp.Body.Close()
	return resp.StatusCode
}
