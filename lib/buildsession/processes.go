// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildsession

import (
	"log/slog"
	"sync"
)

// processTracker records the process groups a build has started and
// not yet reaped, so Cancel can kill whatever outlives the timeout.
type processTracker struct {
	mu     sync.Mutex
	groups map[int]string
}

func newProcessTracker() *processTracker {
	return &processTracker{groups: make(map[int]string)}
}

func (t *processTracker) add(pid int, description string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.groups[pid] = description
}

func (t *processTracker) remove(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.groups, pid)
}

func (t *processTracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.groups)
}

// killAll kills every tracked process group and returns how many kills
// were attempted. Groups that already exited are ignored.
func (t *processTracker) killAll(logger *slog.Logger) int {
	t.mu.Lock()
	pids := make(map[int]string, len(t.groups))
	for pid, description := range t.groups {
		pids[pid] = description
	}
	t.mu.Unlock()

	for pid, description := range pids {
		if err := killProcessGroup(pid); err != nil {
			logger.Debug("process group already gone", "pid", pid, "command", description, "error", err)
			continue
		}
		logger.Warn("killed process group left running after cancel", "pid", pid, "command", description)
	}
	return len(pids)
}
