// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package causal

import "strings"

// ChainHypothesis is a human-readable guess at the likely causal path
// behind an anomaly, derived from service naming conventions.
//
// This is a presentation heuristic, NOT a statistical inference. It is
// kept deliberately separate from the EffectModel estimate so a narrative
// never gets mistaken for a measurement.
type ChainHypothesis struct {
	// Steps is the hypothesized causal path, root first.
	Steps []string `json:"steps"`

	// Narrative is the joined path, e.g. "db_lock -> pool_wait -> latency".
	Narrative string `json:"narrative"`
}

// ChainForService returns the narrative chain hypothesis for a service.
//
// Database-like names map to a lock contention chain, cache-like names to
// a miss/overload chain, gateway-like names to an ingress overload chain.
// Everything else gets a generic per-service degradation chain.
func ChainForService(service string) ChainHypothesis {
	lower := strings.ToLower(service)

	var steps []string
	switch {
	case containsAny(lower, "db", "database", "postgres", "mysql", "sql"):
		steps = []string{"db_lock_contention", "connection_pool_wait", "downstream_latency", "error_rate_increase"}
	case containsAny(lower, "cache", "redis", "memcache"):
		steps = []string{"cache_miss_spike", "backend_overload", "downstream_latency", "error_rate_increase"}
	case containsAny(lower, "gateway", "ingress", "proxy", "lb"):
		steps = []string{"ingress_load_spike", "upstream_timeout", "error_rate_increase"}
	default:
		steps = []string{service + "_degradation", "downstream_latency", "error_rate_increase"}
	}

	return ChainHypothesis{
		Steps:     steps,
		Narrative: strings.Join(steps, " -> "),
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
