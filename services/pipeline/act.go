// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianSentinel/services/audit"
	"github.com/AleutianAI/AleutianSentinel/services/guardrail"
)

// actionLoop is stage 3: screen and record remediation requests.
func (c *Controller) actionLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case request := <-c.actionQueue:
			c.executeAction(ctx, request)
		}
	}
}

// executeAction runs one remediation through the guardrail and records
// the outcome in the history ring and the durable journal.
//
// Execution is simulated: the cleared command is logged, not run
// against a cluster. The safety decision path is the real one.
func (c *Controller) executeAction(ctx context.Context, request ActionRequest) {
	if request.Kind != KindRemediate {
		c.cfg.Logger.Warn("unknown action kind, skipping", "kind", request.Kind)
		return
	}

	record := audit.Record{
		Timestamp:  time.Now().UTC(),
		Service:    request.Target,
		RootCause:  request.Reason,
		Action:     request.Action,
		Confidence: request.Confidence,
	}

	command := commandForAction(request.Action, request.Target)
	if command == "" {
		// Human escalation carries no command and bypasses the
		// guardrail; paging is always safe.
		c.cfg.Logger.Warn("escalating to human operator",
			"target", request.Target, "reason", request.Reason)
		record.Executed = true
		c.remediations.Add(1)
		c.cfg.Metrics.ActionExecuted(request.Action)
	} else {
		record.Command = command
		verdict := c.deps.Guard.Check(command)
		if verdict.Safe {
			c.cfg.Logger.Info("executing remediation",
				"action", request.Action,
				"target", request.Target,
				"command", command,
				"reason", request.Reason,
				"score", verdict.Score)
			record.Executed = true
			c.remediations.Add(1)
			c.cfg.Metrics.ActionExecuted(request.Action)
		} else {
			record.Blocked = true
			record.BlockReason = blockReason(verdict)
			c.blockedCount.Add(1)
			c.cfg.Metrics.ActionBlocked(request.Action)
			c.cfg.Logger.Warn("remediation blocked by guardrail",
				"action", request.Action,
				"target", request.Target,
				"command", command,
				"score", verdict.Score,
				"reason", record.BlockReason)
		}
	}

	c.histMu.Lock()
	c.history.Push(record)
	c.histMu.Unlock()

	if c.deps.Journal != nil {
		if _, err := c.deps.Journal.Append(ctx, record); err != nil {
			c.cfg.Logger.Error("journal append failed",
				"action", request.Action, "error", err)
		}
	}
}

// commandForAction maps a whitelisted action onto the concrete command
// the guardrail screens. page_human maps to no command.
func commandForAction(action, target string) string {
	switch action {
	case "increase_pool":
		return fmt.Sprintf("kubectl set env deployment/%s DB_POOL_SIZE=40", target)
	case "restart_service":
		return fmt.Sprintf("kubectl rollout restart deployment/%s", target)
	case "scale_up":
		return fmt.Sprintf("kubectl scale deployment/%s --replicas=3", target)
	case "investigate_db":
		return fmt.Sprintf("kubectl logs deployment/%s --tail=100", target)
	default:
		return ""
	}
}

// blockReason joins the critical findings into one line.
func blockReason(verdict guardrail.Verdict) string {
	var reasons []string
	for _, issue := range verdict.Issues {
		if issue.Severity == guardrail.SeverityCritical {
			reasons = append(reasons, issue.Message)
		}
	}
	if len(reasons) == 0 {
		return "guardrail score below safety floor"
	}
	return strings.Join(reasons, "; ")
}
