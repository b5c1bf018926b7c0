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
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PolicyWatcher hot-reloads the guardrail policy when its YAML file
// changes on disk.
//
// # Description
//
// Watches the directory containing the policy file (editors replace
// files, so watching the file inode directly misses rewrites). Write and
// create events for the policy path are debounced, then the file is
// re-parsed and, when valid, swapped into the guardrail atomically. A
// file that fails to parse or validate leaves the previous policy active.
//
// # Thread Safety
//
// Start and Stop are safe for concurrent use. Only one watch loop runs
// per watcher.
type PolicyWatcher struct {
	rail     *Guardrail
	path     string
	debounce time.Duration
	logger   *slog.Logger

	watcher  *fsnotify.Watcher
	done     chan struct{}
	mu       sync.Mutex
	watching bool
}

// NewPolicyWatcher creates a watcher for the given policy file path.
func NewPolicyWatcher(rail *Guardrail, path string, logger *slog.Logger) *PolicyWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyWatcher{
		rail:     rail,
		path:     filepath.Clean(path),
		debounce: 200 * time.Millisecond,
		logger:   logger,
	}
}

// Start begins watching. Returns an error if the watcher is already
// running or the directory cannot be watched.
func (w *PolicyWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watching {
		return fmt.Errorf("policy watcher already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch policy directory: %w", err)
	}

	w.watcher = watcher
	w.done = make(chan struct{})
	w.watching = true

	w.logger.Info("guardrail policy watcher starting", "path", w.path)
	go w.runLoop(ctx)
	return nil
}

// Stop ends the watch loop. Safe to call multiple times.
func (w *PolicyWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.watching {
		return
	}
	close(w.done)
	w.watcher.Close()
	w.watching = false
}

func (w *PolicyWatcher) runLoop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("policy watcher error", "error", err)
		}
	}
}

func (w *PolicyWatcher) reload() {
	policy, err := LoadPolicy(w.path)
	if err != nil {
		w.logger.Error("policy reload failed, keeping previous policy",
			"path", w.path, "error", err)
		return
	}
	if err := w.rail.SetPolicy(policy); err != nil {
		w.logger.Error("reloaded policy rejected", "path", w.path, "error", err)
		return
	}
	w.logger.Info("guardrail policy reloaded", "path", w.path)
}
