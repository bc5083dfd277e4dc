// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildsession

import (
	"strings"
	"sync"
	"testing"

	"github.com/bureau-foundation/buildagent/lib/buildcommand"
	"github.com/bureau-foundation/buildagent/lib/testutil"
)

// newTestSession returns an outermost session working in a fresh
// temporary directory and printing to a capture sink.
func newTestSession(t *testing.T, modify func(*Config)) (*Session, *CaptureSink) {
	t.Helper()
	console := &CaptureSink{}
	config := Config{
		BuildID:    testutil.UniqueID("build"),
		Console:    console,
		WorkingDir: t.TempDir(),
	}
	if modify != nil {
		modify(&config)
	}
	return New(config), console
}

// build runs root on a fresh session and fails the test on error.
func build(t *testing.T, root *buildcommand.Command, modify func(*Config)) (buildcommand.Outcome, *Session, *CaptureSink) {
	t.Helper()
	session, console := newTestSession(t, modify)
	outcome, err := session.Build(root)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return outcome, session, console
}

// countLines returns how many lines contain substring.
func countLines(lines []string, substring string) int {
	count := 0
	for _, line := range lines {
		if strings.Contains(line, substring) {
			count++
		}
	}
	return count
}

func requireLine(t *testing.T, console *CaptureSink, substring string) {
	t.Helper()
	if countLines(console.Lines(), substring) == 0 {
		t.Fatalf("console has no line containing %q; lines:\n%s", substring, console.Output())
	}
}

func requireNoLine(t *testing.T, console *CaptureSink, substring string) {
	t.Helper()
	if countLines(console.Lines(), substring) != 0 {
		t.Fatalf("console has a line containing %q; lines:\n%s", substring, console.Output())
	}
}

// recordingReporter records every report it receives.
type recordingReporter struct {
	mu         sync.Mutex
	statuses   []JobState
	completing []buildcommand.Outcome
	completed  []buildcommand.Outcome
	err        error
}

func (r *recordingReporter) ReportBuildStatus(buildID string, state JobState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, state)
	return r.err
}

func (r *recordingReporter) ReportCompleting(buildID string, outcome buildcommand.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completing = append(r.completing, outcome)
	return r.err
}

func (r *recordingReporter) ReportCompleted(buildID string, outcome buildcommand.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, outcome)
	return r.err
}

func (r *recordingReporter) snapshot() (statuses []JobState, completing, completed []buildcommand.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]JobState(nil), r.statuses...),
		append([]buildcommand.Outcome(nil), r.completing...),
		append([]buildcommand.Outcome(nil), r.completed...)
}
