// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package guardrail classifies proposed remediation commands as safe or
// unsafe before the action stage executes them. Classification is a pure
// function of the command string and the active policy: deterministic,
// case-insensitive substring matching with no learning and no history.
package guardrail

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy defines the verb and prefix lists the validator matches against.
//
// The zero value is not usable; start from DefaultPolicy() or LoadPolicy.
type Policy struct {
	// ForbiddenVerbs each subtract 100 points and mark the command unsafe.
	ForbiddenVerbs []string `yaml:"forbidden_verbs"`

	// SafeVerbs are the explicitly allowed mutation verbs. A still-safe
	// command containing none of them draws a 30 point warning.
	SafeVerbs []string `yaml:"safe_verbs"`

	// ToolPrefixes are the recognized infrastructure-as-code tool
	// prefixes. A command starting with none of them draws a 20 point
	// warning.
	ToolPrefixes []string `yaml:"tool_prefixes"`

	// ForceFlags subtract 50 points and mark the command unsafe.
	ForceFlags []string `yaml:"force_flags"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		ForbiddenVerbs: []string{"delete", "remove", "drop", "restart", "reboot"},
		SafeVerbs:      []string{"scale", "edit", "set", "annotate", "label", "rollout"},
		ToolPrefixes:   []string{"kubectl", "terraform"},
		ForceFlags:     []string{"--force", "--grace-period=0"},
	}
}

// Validate checks that every list the validator depends on is non-empty.
func (p Policy) Validate() error {
	if len(p.ForbiddenVerbs) == 0 {
		return fmt.Errorf("guardrail policy: forbidden_verbs must not be empty")
	}
	if len(p.SafeVerbs) == 0 {
		return fmt.Errorf("guardrail policy: safe_verbs must not be empty")
	}
	if len(p.ToolPrefixes) == 0 {
		return fmt.Errorf("guardrail policy: tool_prefixes must not be empty")
	}
	if len(p.ForceFlags) == 0 {
		return fmt.Errorf("guardrail policy: force_flags must not be empty")
	}
	return nil
}

// LoadPolicy reads a policy from a YAML file. Lists absent from the file
// fall back to the built-in defaults, so a policy file may override just
// one list.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}

	policy := DefaultPolicy()
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}
