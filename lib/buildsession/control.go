// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildsession

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/buildagent/lib/buildcommand"
	"github.com/bureau-foundation/buildagent/lib/clock"
)

// passesInTestingSession evaluates command in a fresh testing session
// printing to sink and reports whether that session's outcome is
// Passed.
func passesInTestingSession(session *Session, command *buildcommand.Command, sink Sink) (bool, error) {
	evaluation := session.NewTestingSession(sink)
	if _, err := evaluation.ProcessCommand(command); err != nil {
		return false, err
	}
	return evaluation.Outcome() == buildcommand.Passed, nil
}

func executeAnd(command *buildcommand.Command, session *Session) (bool, error) {
	for _, child := range command.SubCommands {
		passed, err := passesInTestingSession(session, child, nil)
		if err != nil || !passed {
			return false, err
		}
	}
	return true, nil
}

func executeOr(command *buildcommand.Command, session *Session) (bool, error) {
	for _, child := range command.SubCommands {
		passed, err := passesInTestingSession(session, child, nil)
		if err != nil {
			return false, err
		}
		if passed {
			return true, nil
		}
	}
	return false, nil
}

// executeCond takes its children as (test, action) pairs with an
// optional trailing else action. Tests run in testing sessions; the
// chosen action runs in this session.
func executeCond(command *buildcommand.Command, session *Session) (bool, error) {
	children := command.SubCommands
	index := 0
	for ; index+1 < len(children); index += 2 {
		passed, err := passesInTestingSession(session, children[index], nil)
		if err != nil {
			return false, err
		}
		if passed {
			return session.ProcessCommand(children[index+1])
		}
	}
	if index < len(children) {
		return session.ProcessCommand(children[index])
	}
	return true, nil
}

// executeTest evaluates a comparison. String comparisons capture the
// output of the first sub-command; path checks resolve the value
// against the node's working directory.
func executeTest(command *buildcommand.Command, session *Session) (bool, error) {
	flag := command.StringArg("flag")
	value := command.StringArg("value")

	switch flag {
	case buildcommand.TestEqual, buildcommand.TestNotEqual:
		if len(command.SubCommands) == 0 {
			return false, &buildcommand.MalformedCommandError{Kind: buildcommand.KindTest, Reason: flag + " needs a command whose output to compare"}
		}
		output, err := captureOutput(session, command.SubCommands[0])
		if err != nil {
			return false, err
		}
		return (output == value) == (flag == buildcommand.TestEqual), nil

	case buildcommand.TestIsDir, buildcommand.TestIsNotDir, buildcommand.TestIsFile, buildcommand.TestIsNotFile:
		path := session.ResolveRelativeDir(command.WorkingDirectory, value)
		info, err := os.Stat(path)
		exists := err == nil
		switch flag {
		case buildcommand.TestIsDir:
			return exists && info.IsDir(), nil
		case buildcommand.TestIsNotDir:
			return !exists || !info.IsDir(), nil
		case buildcommand.TestIsFile:
			return exists && info.Mode().IsRegular(), nil
		default:
			return !exists || !info.Mode().IsRegular(), nil
		}
	}

	return false, &buildcommand.MalformedCommandError{Kind: buildcommand.KindTest, Reason: fmt.Sprintf("unknown flag %q", flag)}
}

// captureOutput runs command in a testing session whose console is a
// capture buffer, and returns what it printed with terminal escapes
// removed. The command's own success does not matter.
func captureOutput(session *Session, command *buildcommand.Command) (string, error) {
	capture := &CaptureSink{}
	evaluation := session.NewTestingSession(capture)
	if _, err := evaluation.ProcessCommand(command); err != nil {
		return "", err
	}
	return ansi.Strip(capture.Output()), nil
}

// executeTask wraps a single command with status markers and copies
// its result onto the task node.
func executeTask(command *buildcommand.Command, session *Session) (bool, error) {
	if len(command.SubCommands) != 1 {
		return false, &buildcommand.MalformedCommandError{
			Kind:   buildcommand.KindTask,
			Reason: fmt.Sprintf("task wraps exactly one command, got %d", len(command.SubCommands)),
		}
	}
	child := command.SubCommands[0]

	description := command.StringArg("description")
	if description == "" {
		description = child.Describe()
	}

	session.Printf("Current job status: %s.", session.Outcome())
	session.Printf("Start to execute task: %s.", description)

	start := session.clock.Now()
	success, err := session.ProcessCommand(child)
	duration := clock.Since(session.clock, start)
	if err != nil {
		return false, err
	}

	child.RecordDuration(duration)
	command.CopyResult(child)

	session.Println(taskStatusLine(child))
	return success, nil
}

func taskStatusLine(child *buildcommand.Command) string {
	var status strings.Builder
	status.WriteString("Task status: ")
	switch child.Outcome() {
	case buildcommand.Cancelled:
		status.WriteString("cancelled")
	case buildcommand.Failed:
		status.WriteString("failed")
		if code := child.ExitCode(); code != buildcommand.NoExitCode {
			fmt.Fprintf(&status, " (exit code: %d)", code)
		}
	case buildcommand.Passed:
		status.WriteString("passed")
	default:
		status.WriteString("skipped")
	}
	fmt.Fprintf(&status, " (%s)", formatDuration(child.Duration()))
	return status.String()
}

// executeCompose runs its children in order in this session, so each
// child's run-if policy sees the outcome of the ones before it.
func executeCompose(command *buildcommand.Command, session *Session) (bool, error) {
	allPassed := true
	for _, child := range command.SubCommands {
		passed, err := session.ProcessCommand(child)
		if err != nil {
			return false, err
		}
		allPassed = allPassed && passed
	}
	return allPassed, nil
}
