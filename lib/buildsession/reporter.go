// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildsession

import (
	"fmt"
	"strings"

	"github.com/bureau-foundation/buildagent/lib/buildcommand"
)

// JobState is the coarse lifecycle state the agent reports for a job.
type JobState string

const (
	Preparing  JobState = "Preparing"
	Building   JobState = "Building"
	Completing JobState = "Completing"
	Completed  JobState = "Completed"
)

// ParseJobState accepts a state name in any letter case.
func ParseJobState(name string) (JobState, error) {
	for _, state := range []JobState{Preparing, Building, Completing, Completed} {
		if strings.EqualFold(name, string(state)) {
			return state, nil
		}
	}
	return "", fmt.Errorf("unknown job state %q", name)
}

// Reporter delivers job status to the server. Implementations own
// their transport; a failed report is logged and shown on the console
// but never changes the build outcome.
type Reporter interface {
	ReportBuildStatus(buildID string, state JobState) error
	ReportCompleting(buildID string, outcome buildcommand.Outcome) error
	ReportCompleted(buildID string, outcome buildcommand.Outcome) error
}

// NoopReporter discards every report. Testing sessions use it.
type NoopReporter struct{}

func (NoopReporter) ReportBuildStatus(string, JobState) error { return nil }
func (NoopReporter) ReportCompleting(string, buildcommand.Outcome) error { return nil }
func (NoopReporter) ReportCompleted(string, buildcommand.Outcome) error { return nil }
