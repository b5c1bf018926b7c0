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
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSentinel/services/sentinel"
)

var (
	serveConfigPath string
	servePort       int

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the sentinel RCA service",
		Long: `Starts the telemetry pipeline, temporal graph, diagnosis engine,
guardrail, and HTTP API. Configuration comes from an optional YAML file
and the environment; see sentinel.example.yaml for the full surface.`,
		Run: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "sentinel.yaml", "Path to the YAML config file")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Override the HTTP listen port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := sentinel.LoadConfig(serveConfigPath)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	if servePort > 0 {
		cfg.Port = servePort
	}

	svc, err := sentinel.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Error assembling the sentinel: %v", err)
	}
	if err := svc.Run(ctx); err != nil {
		log.Fatalf("Sentinel exited with an error: %v", err)
	}
}
