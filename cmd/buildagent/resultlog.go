// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/buildagent/lib/buildcommand"
	"github.com/bureau-foundation/buildagent/lib/buildsession"
	"github.com/bureau-foundation/buildagent/lib/clock"
	"github.com/bureau-foundation/buildagent/lib/version"
)

// resultRecord is one line of the result log.
type resultRecord struct {
	Time    time.Time             `json:"time"`
	BuildID string                `json:"build_id"`
	Event   string                `json:"event"`
	State   buildsession.JobState `json:"state,omitempty"`
	Outcome buildcommand.Outcome  `json:"outcome,omitempty"`
	Agent   string                `json:"agent,omitempty"`
}

// resultLog is a Reporter that appends every status report to a JSONL
// file, one record per line.
type resultLog struct {
	mu      sync.Mutex
	writer  io.Writer
	closer  io.Closer
	encoder *json.Encoder
	clock   clock.Clock
}

func openResultLog(path string, logClock clock.Clock) (*resultLog, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening result log: %w", err)
	}
	log := newResultLog(file, logClock)
	log.closer = file
	return log, nil
}

func newResultLog(writer io.Writer, logClock clock.Clock) *resultLog {
	return &resultLog{writer: writer, encoder: json.NewEncoder(writer), clock: logClock}
}

func (r *resultLog) write(record resultRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.Time = r.clock.Now().UTC()
	return r.encoder.Encode(record)
}

// Started records the agent version a build runs under.
func (r *resultLog) Started(buildID string) error {
	return r.write(resultRecord{BuildID: buildID, Event: "started", Agent: version.Short()})
}

func (r *resultLog) ReportBuildStatus(buildID string, state buildsession.JobState) error {
	return r.write(resultRecord{BuildID: buildID, Event: "status", State: state})
}

func (r *resultLog) ReportCompleting(buildID string, outcome buildcommand.Outcome) error {
	return r.write(resultRecord{BuildID: buildID, Event: "status", State: buildsession.Completing, Outcome: outcome})
}

func (r *resultLog) ReportCompleted(buildID string, outcome buildcommand.Outcome) error {
	return r.write(resultRecord{BuildID: buildID, Event: "status", State: buildsession.Completed, Outcome: outcome})
}

func (r *resultLog) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
