// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package guardrail

import (
	"fmt"
	"strings"
	"sync"
)

// Severity labels an issue found during validation.
type Severity string

const (
	// SeverityCritical issues flip the safe bit.
	SeverityCritical Severity = "critical"

	// SeverityWarning issues reduce the score but leave the safe bit alone.
	SeverityWarning Severity = "warning"
)

// Issue is one finding against a proposed command.
type Issue struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Verdict is the result of classifying one command.
type Verdict struct {
	// Safe is false when any critical issue was found.
	Safe bool `json:"safe"`

	// Score starts at 100 and is reduced per issue, clamped at 0.
	Score int `json:"score"`

	// Issues lists every finding, criticals and warnings alike.
	Issues []Issue `json:"issues"`

	// SimulatedOutcome is a fixed human-readable string keyed only on
	// the safe bit.
	SimulatedOutcome string `json:"simulated_outcome"`
}

// HasCritical reports whether any issue is critical.
func (v Verdict) HasCritical() bool {
	for _, issue := range v.Issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Fixed outcome strings, keyed only on the safe bit.
const (
	outcomeSafe   = "Simulation: command applies a bounded, reversible change. Cleared for execution."
	outcomeUnsafe = "Simulation: command risks destructive or disruptive impact. Execution blocked."
)

// Guardrail classifies commands against an active policy.
//
// # Description
//
// Check is a pure function of the command string and the policy snapshot
// taken at call time: same input, same policy, same verdict. No I/O, no
// history. SetPolicy swaps the active policy atomically, which is how the
// fsnotify watcher applies hot reloads.
//
// # Thread Safety
//
// Safe for concurrent use.
type Guardrail struct {
	mu     sync.RWMutex
	policy Policy
}

// New creates a guardrail with the given policy. Invalid policies fall
// back to the defaults.
func New(policy Policy) *Guardrail {
	if err := policy.Validate(); err != nil {
		policy = DefaultPolicy()
	}
	return &Guardrail{policy: policy}
}

// SetPolicy atomically replaces the active policy. Invalid policies are
// rejected.
func (g *Guardrail) SetPolicy(policy Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	g.policy = policy
	g.mu.Unlock()
	return nil
}

// Policy returns a copy of the active policy.
func (g *Guardrail) Policy() Policy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.policy
}

// Check classifies a single proposed command.
//
// # Description
//
// Scoring walks a fixed rule order:
//
//  1. Start at 100, safe.
//  2. Each forbidden verb present: -100, unsafe, critical issue.
//  3. No recognized tool prefix: -20, warning.
//  4. Any force flag present: -50, unsafe, critical issue.
//  5. Still safe but no explicitly-safe verb: -30, warning.
//  6. Clamp score at 0.
//
// Matching is case-insensitive substring containment; the prefix rule
// matches the start of the trimmed command.
func (g *Guardrail) Check(command string) Verdict {
	g.mu.RLock()
	policy := g.policy
	g.mu.RUnlock()

	lower := strings.ToLower(strings.TrimSpace(command))

	verdict := Verdict{Safe: true, Score: 100, Issues: []Issue{}}

	for _, verb := range policy.ForbiddenVerbs {
		if strings.Contains(lower, verb) {
			verdict.Score -= 100
			verdict.Safe = false
			verdict.Issues = append(verdict.Issues, Issue{
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("forbidden verb %q present", verb),
			})
		}
	}

	if !hasToolPrefix(lower, policy.ToolPrefixes) {
		verdict.Score -= 20
		verdict.Issues = append(verdict.Issues, Issue{
			Severity: SeverityWarning,
			Message:  "command does not start with a recognized infrastructure tool",
		})
	}

	for _, flag := range policy.ForceFlags {
		if strings.Contains(lower, flag) {
			verdict.Score -= 50
			verdict.Safe = false
			verdict.Issues = append(verdict.Issues, Issue{
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("force flag %q overrides safety interlocks", flag),
			})
			break
		}
	}

	if verdict.Safe && !containsAnyVerb(lower, policy.SafeVerbs) {
		verdict.Score -= 30
		verdict.Issues = append(verdict.Issues, Issue{
			Severity: SeverityWarning,
			Message:  "command uses no explicitly allowed verb",
		})
	}

	if verdict.Score < 0 {
		verdict.Score = 0
	}

	if verdict.Safe {
		verdict.SimulatedOutcome = outcomeSafe
	} else {
		verdict.SimulatedOutcome = outcomeUnsafe
	}
	return verdict
}

func hasToolPrefix(command string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(command, prefix) {
			return true
		}
	}
	return false
}

func containsAnyVerb(command string, verbs []string) bool {
	for _, verb := range verbs {
		if strings.Contains(command, verb) {
			return true
		}
	}
	return false
}
