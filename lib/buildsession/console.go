// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildsession

import (
	"bytes"
	"strings"
	"sync"

	"github.com/bureau-foundation/buildagent/lib/secret"
)

// MessagePrefix frames lines written by the agent itself, so they can
// be told apart from process output in the build log.
const MessagePrefix = "[build] "

// Sink receives console lines, without trailing newlines. Process
// output may arrive from several goroutines at once, so implementations
// must be safe for concurrent use.
type Sink interface {
	ConsumeLine(line string)
}

// SinkFunc adapts a function to the Sink interface. The function must
// be safe for concurrent use.
type SinkFunc func(line string)

func (f SinkFunc) ConsumeLine(line string) { f(line) }

// DiscardSink drops every line.
type DiscardSink struct{}

func (DiscardSink) ConsumeLine(string) {}

// CaptureSink records lines in memory.
type CaptureSink struct {
	mu    sync.Mutex
	lines []string
}

func (c *CaptureSink) ConsumeLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

// Lines returns a copy of the recorded lines.
func (c *CaptureSink) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// LineCount returns the number of recorded lines.
func (c *CaptureSink) LineCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// Output returns the recorded lines joined with newlines.
func (c *CaptureSink) Output() string {
	return strings.Join(c.Lines(), "\n")
}

// redactingSink rewrites every line through the secret table before
// passing it on.
type redactingSink struct {
	next    Sink
	secrets *secret.Table
}

func (r redactingSink) ConsumeLine(line string) {
	r.next.ConsumeLine(r.secrets.Redact(line))
}

// lineWriter splits a byte stream into lines for a Sink. Carriage
// returns before a newline are dropped. Call Flush after the last
// Write to emit a final unterminated line.
type lineWriter struct {
	mu      sync.Mutex
	sink    Sink
	pending []byte
}

func newLineWriter(sink Sink) *lineWriter {
	return &lineWriter{sink: sink}
}

func (w *lineWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, data...)
	for {
		index := bytes.IndexByte(w.pending, '\n')
		if index < 0 {
			break
		}
		w.sink.ConsumeLine(string(bytes.TrimSuffix(w.pending[:index], []byte{'\r'})))
		w.pending = w.pending[index+1:]
	}
	return len(data), nil
}

// Flush emits any buffered partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) > 0 {
		w.sink.ConsumeLine(string(bytes.TrimSuffix(w.pending, []byte{'\r'})))
		w.pending = nil
	}
}
