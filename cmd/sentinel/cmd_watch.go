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
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSentinel/pkg/ux"
	"github.com/AleutianAI/AleutianSentinel/services/audit"
	"github.com/AleutianAI/AleutianSentinel/services/sentinel/datatypes"
)

var (
	watchServer   string
	watchInterval time.Duration

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard for a running sentinel",
		Long:  `Polls the status and remediation endpoints and renders a terminal dashboard. Press q to quit.`,
		Run:   runWatch,
	}
)

func init() {
	watchCmd.Flags().StringVar(&watchServer, "server", "http://localhost:12400", "Sentinel base URL")
	watchCmd.Flags().DurationVar(&watchInterval, "refresh", 2*time.Second, "Poll interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ux.Styles.Subtitle

	model := watchModel{
		server:  watchServer,
		client:  &http.Client{Timeout: 5 * time.Second},
		spinner: sp,
	}
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		log.Fatalf("Error running dashboard: %v", err)
	}
}

// watchDataMsg carries one poll result into the model.
type watchDataMsg struct {
	status datatypes.StatusResponse
	recent []audit.Record
	err    error
}

type watchModel struct {
	server  string
	client  *http.Client
	spinner spinner.Model

	status  datatypes.StatusResponse
	recent  []audit.Record
	lastErr error
	polls   int
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case watchDataMsg:
		m.polls++
		m.lastErr = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.recent = msg.recent
		}
		return m, tea.Tick(watchInterval, func(time.Time) tea.Msg {
			return m.poll()
		})
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(ux.Styles.Title.Render("Aleutian Sentinel") + "  " +
		ux.Styles.Muted.Render(m.server) + "\n\n")

	if m.polls == 0 {
		b.WriteString(m.spinner.View() + " connecting...\n")
		return b.String()
	}
	if m.lastErr != nil {
		b.WriteString(m.spinner.View() + " " +
			ux.Styles.Error.Render(fmt.Sprintf("unreachable: %v", m.lastErr)) + "\n")
		b.WriteString(ux.Styles.Muted.Render("press q to quit") + "\n")
		return b.String()
	}

	state := ux.Styles.Error.Render("stopped")
	if m.status.Running {
		state = ux.Styles.Success.Render("running")
	}
	b.WriteString(fmt.Sprintf("pipeline %s   cycles %d   degraded diagnoses %d\n\n",
		state, m.status.AnalysisCycles, m.status.DegradedDiags))

	b.WriteString(watchCounter("processed", m.status.Processed))
	b.WriteString(watchCounter("errors", m.status.Errors))
	b.WriteString(watchCounter("remediations", m.status.Remediations))
	b.WriteString(watchCounter("blocked", m.status.Blocked))
	b.WriteString(watchCounter("dropped", m.status.Dropped))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("queues  raw %d/100  action %d/50\n",
		m.status.RawQueueDepth, m.status.ActionQueueDepth))
	b.WriteString(fmt.Sprintf("graph   %d nodes  %d edges   memory %d vectors\n\n",
		m.status.GraphNodes, m.status.GraphEdges, m.status.VectorCount))

	b.WriteString(ux.Styles.Subtitle.Render("Recent remediations") + "\n")
	if len(m.recent) == 0 {
		b.WriteString(ux.Styles.Muted.Render("  none yet") + "\n")
	}
	start := 0
	if len(m.recent) > 5 {
		start = len(m.recent) - 5
	}
	for _, rec := range m.recent[start:] {
		marker := ux.Styles.Success.Render("✓")
		if rec.Blocked {
			marker = ux.Styles.Error.Render("✗")
		}
		b.WriteString(fmt.Sprintf("  %s %s  %s → %s (%.2f)\n",
			marker, rec.Timestamp.Format("15:04:05"), rec.Service, rec.Action, rec.Confidence))
	}

	b.WriteString("\n" + ux.Styles.Muted.Render("press q to quit") + "\n")
	return b.String()
}

func watchCounter(label string, value uint64) string {
	return fmt.Sprintf("%-14s %s\n", label, ux.Styles.Bold.Render(fmt.Sprintf("%d", value)))
}

// poll fetches status and remediation history in one shot.
func (m watchModel) poll() tea.Msg {
	var status datatypes.StatusResponse
	if err := m.getJSON("/v1/status", &status); err != nil {
		return watchDataMsg{err: err}
	}

	var history struct {
		Remediations []audit.Record `json:"remediations"`
	}
	if err := m.getJSON("/v1/remediations", &history); err != nil {
		return watchDataMsg{err: err}
	}
	return watchDataMsg{status: status, recent: history.Remediations}
}

func (m watchModel) getJSON(path string, out interface{}) error {
	resp, err := m.client.Get(m.server + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s answered %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
