// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command sentinel runs the Aleutian Sentinel RCA service and its
// operator tooling.
//
// Usage:
//
//	sentinel serve                  # start the RCA service
//	sentinel check -- kubectl ...   # classify a command offline
//	sentinel watch                  # live pipeline dashboard
//	sentinel generate --incident    # synthetic telemetry load
package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSentinel/pkg/ux"
)

var (
	rootCmd = &cobra.Command{
		Use:   "sentinel",
		Short: "Autonomous root-cause analysis for microservice telemetry",
		Long: `Aleutian Sentinel watches service telemetry, detects anomalies,
diagnoses root causes with an LLM, and proposes guardrail-checked
remediations.`,
	}

	noColor bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable styled terminal output")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if noColor {
			ux.SetPlain(true)
		}
	}
}
