// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildsession

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/buildagent/lib/buildcommand"
)

// processWaitDelay bounds how long Wait keeps reading output after the
// process group was killed, in case a daemonized grandchild escaped
// the group and still holds the pipe.
const processWaitDelay = 5 * time.Second

// Argument is one process argument. A substitutable argument carries a
// secret: Value goes to the operating system, Display is what logs and
// the console show.
type Argument struct {
	Value         string
	Display       string
	Substitutable bool
}

// String returns the argument as it may be shown.
func (a Argument) String() string {
	if a.Substitutable {
		return a.Display
	}
	return a.Value
}

// CommandLine is a process invocation built from an exec node.
type CommandLine struct {
	Executable string
	Arguments  []Argument
	WorkingDir string
	Env        []string
}

// Args returns the real argument values.
func (c *CommandLine) Args() []string {
	values := make([]string, len(c.Arguments))
	for index, argument := range c.Arguments {
		values[index] = argument.Value
	}
	return values
}

// Describe renders the command line with secrets replaced by their
// substitution text.
func (c *CommandLine) Describe() string {
	parts := []string{c.Executable}
	for _, argument := range c.Arguments {
		display := argument.String()
		if display == "" || strings.ContainsAny(display, " \t\"'") {
			display = fmt.Sprintf("%q", display)
		}
		parts = append(parts, display)
	}
	return strings.Join(parts, " ")
}

// newCommandLine builds the invocation for an exec node. goos selects
// the script convention: on Windows a script is run through cmd /c.
func newCommandLine(command *buildcommand.Command, session *Session, workingDir, goos string) *CommandLine {
	executable := command.StringArg("command")
	args := command.StringsArg("args")

	if command.BoolArg("script") && goos == "windows" {
		args = append([]string{"/c", strings.ReplaceAll(executable, "/", `\`)}, args...)
		executable = "cmd"
	}

	arguments := make([]Argument, len(args))
	for index, value := range args {
		arguments[index] = Argument{Value: value}
		if substitution, ok := session.secrets.Substitution(value); ok {
			arguments[index].Display = substitution
			arguments[index].Substitutable = true
		}
	}

	return &CommandLine{
		Executable: executable,
		Arguments:  arguments,
		WorkingDir: workingDir,
		Env:        session.env.Environ(),
	}
}

// pathOf returns the PATH a process launched with environ would search.
func pathOf(environ []string) string {
	for _, entry := range environ {
		if value, ok := strings.CutPrefix(entry, "PATH="); ok {
			return value
		}
	}
	return ""
}

// executeProcess runs an exec node. The process runs on the worker
// pool next to a watcher on the cancellation signal; whichever finishes
// first releases this goroutine, and the other is cancelled.
// Cancelling the process task kills the process group.
func executeProcess(command *buildcommand.Command, session *Session) (bool, error) {
	workingDir := session.ResolveRelativeDir(command.WorkingDirectory)
	if info, err := os.Stat(workingDir); err != nil || !info.IsDir() {
		session.Printf("Working directory %q is not a directory!", workingDir)
		return false, nil
	}

	commandLine := newCommandLine(command, session, workingDir, runtime.GOOS)
	if command.BoolArg("verbose") {
		session.Printf("Executing %s in %s", commandLine.Describe(), workingDir)
	}

	done := make(chan struct{})
	var finish sync.Once
	release := func() { finish.Do(func() { close(done) }) }

	exitCode := buildcommand.NoExitCode
	var launchErr error

	runner, err := session.pool.submit(func(ctx context.Context) {
		defer release()
		exitCode, launchErr = runProcess(ctx, commandLine, session)
	})
	if err != nil {
		return false, fmt.Errorf("starting %s: %w", commandLine.Describe(), err)
	}

	watcher, err := session.pool.submit(func(ctx context.Context) {
		select {
		case <-session.Context().Done():
			release()
		case <-ctx.Done():
		}
	})
	if err != nil {
		runner.Cancel()
		<-runner.Done()
		return false, fmt.Errorf("watching %s: %w", commandLine.Describe(), err)
	}

	<-done
	watcher.Cancel()
	runner.Cancel()
	// The runner has either exited or been killed; wait for it so the
	// exit code is final and its output is flushed before the next node
	// prints.
	<-runner.Done()

	if launchErr != nil {
		session.logger.Error("process launch failed", "command", commandLine.Describe(), "working_dir", workingDir, "error", session.secrets.Redact(launchErr.Error()))
		session.Printf("Could not run %s: %v", commandLine.Describe(), launchErr)
		session.Printf("Please make sure %q can be executed on this agent. PATH is %q.", commandLine.Executable, pathOf(commandLine.Env))
		return false, nil
	}

	command.RecordExitCode(exitCode)
	return exitCode == 0, nil
}

// runProcess runs commandLine to completion, streaming its combined
// output into the session console. It returns the exit code, or
// NoExitCode when the process was killed or never started. The error
// is non-nil only when the process could not be launched.
func runProcess(ctx context.Context, commandLine *CommandLine, session *Session) (int, error) {
	cmd := exec.CommandContext(ctx, commandLine.Executable, commandLine.Args()...)
	cmd.Dir = commandLine.WorkingDir
	cmd.Env = commandLine.Env
	cmd.WaitDelay = processWaitDelay
	startInProcessGroup(cmd)

	output := newLineWriter(session.console)
	cmd.Stdout = output
	cmd.Stderr = output
	defer output.Flush()

	if err := cmd.Start(); err != nil {
		return buildcommand.NoExitCode, err
	}

	pid := cmd.Process.Pid
	session.processes.add(pid, commandLine.Describe())
	defer session.processes.remove(pid)

	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		// ExitCode is -1 for a signal death, which is NoExitCode.
		return exitError.ExitCode(), nil
	}
	session.logger.Warn("process wait failed", "command", commandLine.Describe(), "error", err)
	return buildcommand.NoExitCode, nil
}

// formatDuration formats a duration for console markers.
func formatDuration(duration time.Duration) string {
	return fmt.Sprintf("%.1fs", duration.Seconds())
}
