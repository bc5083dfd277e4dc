// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildcommand

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Command kinds understood by the default executor registry.
const (
	KindExec                = "exec"
	KindAnd                 = "and"
	KindOr                  = "or"
	KindCond                = "cond"
	KindTest                = "test"
	KindTask                = "task"
	KindCompose             = "compose"
	KindEcho                = "echo"
	KindFail                = "fail"
	KindExport              = "export"
	KindSecret              = "secret"
	KindMkdirs              = "mkdirs"
	KindCleandir            = "cleandir"
	KindReportCurrentStatus = "reportCurrentStatus"
	KindReportCompleting    = "reportCompleting"
	KindDownloadFile        = "downloadFile"
	KindDownloadDir         = "downloadDir"
	KindUploadArtifact      = "uploadArtifact"
	KindGenerateProperty    = "generateProperty"
)

// NoExitCode is the exit code of a node that never produced one.
const NoExitCode = -1

// Command is one node of a build command tree.
type Command struct {
	// Name selects the handler.
	Name string `json:"name"`

	// Args holds string, []string and bool arguments. JSON-decoded
	// trees carry []any for string lists; use the typed accessors.
	Args map[string]any `json:"args,omitempty"`

	SubCommands []*Command `json:"sub_commands,omitempty"`

	// WorkingDirectory is resolved against the session's base
	// directory when relative.
	WorkingDirectory string `json:"working_dir,omitempty"`

	// Test guards the node: unless it passes, the node is skipped and
	// counts as success.
	Test *Command `json:"test,omitempty"`

	RunIfConfig RunIf `json:"run_if,omitempty"`

	OnCancel *Command `json:"on_cancel,omitempty"`

	result result
}

type result struct {
	mu          sync.Mutex
	outcome     Outcome
	exitCode    int
	exitCodeSet bool
	duration    time.Duration
	durationSet bool
}

// StringArg returns the named string argument, or "" when absent or
// not a string.
func (c *Command) StringArg(name string) string {
	value, _ := c.Args[name].(string)
	return value
}

// HasArg reports whether the named argument is present.
func (c *Command) HasArg(name string) bool {
	_, ok := c.Args[name]
	return ok
}

// StringsArg returns the named list argument. A single string is
// returned as a one-element list.
func (c *Command) StringsArg(name string) []string {
	switch value := c.Args[name].(type) {
	case []string:
		return value
	case []any:
		values := make([]string, 0, len(value))
		for _, element := range value {
			if text, ok := element.(string); ok {
				values = append(values, text)
			}
		}
		return values
	case string:
		return []string{value}
	}
	return nil
}

// BoolArg returns the named boolean argument. The strings "true" and
// "false" are accepted for trees written by hand.
func (c *Command) BoolArg(name string) bool {
	switch value := c.Args[name].(type) {
	case bool:
		return value
	case string:
		return value == "true"
	}
	return false
}

// Describe renders the node for console markers: the command line for
// exec nodes, the description argument when one is set, otherwise the
// kind name.
func (c *Command) Describe() string {
	if description := c.StringArg("description"); description != "" {
		return description
	}
	if c.Name != KindExec {
		return c.Name
	}
	parts := []string{c.StringArg("command")}
	for _, argument := range c.StringsArg("args") {
		if argument == "" || strings.ContainsAny(argument, " \t\"'") {
			argument = fmt.Sprintf("%q", argument)
		}
		parts = append(parts, argument)
	}
	return strings.Join(parts, " ")
}

// Outcome returns the node's recorded outcome, or "" if it has none
// (not yet run, or skipped by its run-if policy or test guard).
func (c *Command) Outcome() Outcome {
	c.result.mu.Lock()
	defer c.result.mu.Unlock()
	return c.result.outcome
}

// ExitCode returns the recorded process exit code, or NoExitCode.
func (c *Command) ExitCode() int {
	c.result.mu.Lock()
	defer c.result.mu.Unlock()
	if !c.result.exitCodeSet {
		return NoExitCode
	}
	return c.result.exitCode
}

// Duration returns the recorded wall-clock duration.
func (c *Command) Duration() time.Duration {
	c.result.mu.Lock()
	defer c.result.mu.Unlock()
	return c.result.duration
}

// RecordOutcome stores the node's outcome unless one was already
// recorded in this pass. It reports whether the value was stored.
func (c *Command) RecordOutcome(outcome Outcome) bool {
	c.result.mu.Lock()
	defer c.result.mu.Unlock()
	if c.result.outcome != "" {
		return false
	}
	c.result.outcome = outcome
	return true
}

// RecordExitCode stores the node's exit code once per pass.
func (c *Command) RecordExitCode(code int) bool {
	c.result.mu.Lock()
	defer c.result.mu.Unlock()
	if c.result.exitCodeSet || code == NoExitCode {
		return false
	}
	c.result.exitCode = code
	c.result.exitCodeSet = true
	return true
}

// RecordDuration stores the node's duration once per pass.
func (c *Command) RecordDuration(duration time.Duration) bool {
	c.result.mu.Lock()
	defer c.result.mu.Unlock()
	if c.result.durationSet {
		return false
	}
	c.result.duration = duration
	c.result.durationSet = true
	return true
}

// CopyResult records source's outcome, exit code and duration on c.
// Wrapping nodes use it so that tooling inspecting the wrapper sees
// the wrapped node's result.
func (c *Command) CopyResult(source *Command) {
	if outcome := source.Outcome(); outcome != "" {
		c.RecordOutcome(outcome)
	}
	c.RecordExitCode(source.ExitCode())
	c.RecordDuration(source.Duration())
}

// Walk calls visit for c and every node reachable from it: children,
// test guards and on-cancel commands, parents before children.
func (c *Command) Walk(visit func(*Command)) {
	if c == nil {
		return
	}
	visit(c)
	c.Test.Walk(visit)
	for _, child := range c.SubCommands {
		child.Walk(visit)
	}
	c.OnCancel.Walk(visit)
}

// ResetResults clears the result bookkeeping of the whole tree so it
// can be recorded afresh by a new build pass.
func (c *Command) ResetResults() {
	c.Walk(func(node *Command) {
		node.result.mu.Lock()
		node.result.outcome = ""
		node.result.exitCode = 0
		node.result.exitCodeSet = false
		node.result.duration = 0
		node.result.durationSet = false
		node.result.mu.Unlock()
	})
}
