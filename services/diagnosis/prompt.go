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
	"fmt"
	"strings"
)

const systemInstructions = `You are an expert Site Reliability Engineer.
Analyze the system failure context and provide a structured diagnosis.

Rules:
1. Identify the root cause from the causal chain provided
2. Confidence score must be 0.0-1.0
3. Action must be one of: [increase_pool, restart_service, scale_up, investigate_db, page_human]

Respond ONLY in JSON format:
{
    "root_cause": "brief technical description",
    "confidence_score": 0.95,
    "affected_service": "service_name",
    "recommended_action": "action_name",
    "reasoning": "one sentence explanation"
}`

// buildPrompt renders the incident context into the diagnosis prompt.
func buildPrompt(incident IncidentContext) string {
	var sb strings.Builder

	sb.WriteString(systemInstructions)
	sb.WriteString("\n\nCurrent Incident:\n")
	fmt.Fprintf(&sb, "- Service: %s\n", incident.Service)
	fmt.Fprintf(&sb, "- Avg Latency: %.0fms\n", incident.AvgLatencyMs)
	fmt.Fprintf(&sb, "- Error Rate: %.2f\n", incident.ErrorRate)
	fmt.Fprintf(&sb, "- Causal Chain (naming heuristic): %s\n", incident.Chain.Narrative)
	if incident.CausalEffect != 0 {
		fmt.Fprintf(&sb, "- Estimated Treatment Effect: %.2fms\n", incident.CausalEffect)
	}

	if len(incident.UpstreamObservations) > 0 {
		sb.WriteString("- Upstream callers in window:\n")
		for svc, count := range incident.UpstreamObservations {
			fmt.Fprintf(&sb, "  - %s (%d observations)\n", svc, count)
		}
	}

	sb.WriteString("- Recent Log Context:\n")
	if len(incident.ErrorContext) == 0 {
		sb.WriteString("No specific logs provided\n")
	} else {
		for _, msg := range incident.ErrorContext {
			fmt.Fprintf(&sb, "%s\n", msg)
		}
	}

	sb.WriteString("\nHistorical Similar Incidents:\n")
	if len(incident.SimilarIncidents) == 0 {
		sb.WriteString("None found\n")
	} else {
		for i, similar := range incident.SimilarIncidents {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&sb, "- %s: %s\n", similar.Service, similar.Message)
		}
	}

	sb.WriteString("\nProvide JSON diagnosis:")
	return sb.String()
}
