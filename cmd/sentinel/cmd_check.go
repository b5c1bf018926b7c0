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
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSentinel/pkg/ux"
	"github.com/AleutianAI/AleutianSentinel/services/guardrail"
)

var (
	checkPolicyPath string

	checkCmd = &cobra.Command{
		Use:   "check [command...]",
		Short: "Classify a remediation command against the guardrail",
		Long: `Runs the guardrail offline against a proposed command and prints
the verdict. Exits 1 when the command would be blocked, so it can gate
scripts:

	sentinel check -- kubectl rollout restart deployment/payment-db`,
		Args: cobra.MinimumNArgs(1),
		Run:  runCheck,
	}
)

func init() {
	checkCmd.Flags().StringVar(&checkPolicyPath, "policy", "", "Path to a YAML guardrail policy (default: built-in)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) {
	policy := guardrail.DefaultPolicy()
	if checkPolicyPath != "" {
		loaded, err := guardrail.LoadPolicy(checkPolicyPath)
		if err != nil {
			log.Fatalf("Error loading policy %s: %v", checkPolicyPath, err)
		}
		policy = loaded
	}

	command := strings.Join(args, " ")
	verdict := guardrail.New(policy).Check(command)

	ux.Title("Guardrail verdict")
	ux.Info(fmt.Sprintf("command: %s", command))
	ux.Info(fmt.Sprintf("score:   %s", ux.ScoreBar(verdict.Score, 30)))
	for _, issue := range verdict.Issues {
		line := fmt.Sprintf("[%s] %s", issue.Severity, issue.Message)
		if issue.Severity == guardrail.SeverityCritical {
			ux.Error(line)
		} else {
			ux.Warning(line)
		}
	}
	if verdict.SimulatedOutcome != "" {
		ux.Muted(verdict.SimulatedOutcome)
	}

	if !verdict.Safe {
		ux.Error("command would be BLOCKED")
		os.Exit(1)
	}
	ux.Success("command is safe to execute")
}
