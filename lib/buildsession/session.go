// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/buildagent/lib/buildcommand"
	"github.com/bureau-foundation/buildagent/lib/clock"
	"github.com/bureau-foundation/buildagent/lib/secret"
)

// ErrSessionUsed is returned by Build on a session that has already
// run a build.
var ErrSessionUsed = errors.New("build session has already been used")

// Config configures the outermost session of a build. Only BuildID is
// required in practice; every other field has a working default.
type Config struct {
	BuildID string

	// Registry maps command kinds to executors. Nil selects
	// DefaultRegistry().
	Registry *Registry

	// Reporter receives job status. Nil selects NoopReporter.
	Reporter Reporter

	// Console receives the build log. Nil discards it.
	Console Sink

	// WorkingDir is the base directory relative command directories
	// resolve against. Empty selects the agent's current directory.
	WorkingDir string

	// Environment seeds the variables exported to processes.
	Environment map[string]string

	// Secrets is the build's secret table. Nil creates an empty one
	// with the default mask.
	Secrets *secret.Table

	// Variables are the build variables echo substitutes for ${name}.
	Variables map[string]string

	// Publisher uploads artifacts and sets build properties. Nil makes
	// uploadArtifact and generateProperty fail.
	Publisher Publisher

	// Downloader fetches artifacts. Nil makes downloadFile and
	// downloadDir fail.
	Downloader Downloader

	Clock  clock.Clock
	Logger *slog.Logger
}

// Session is one evaluation context of a build. See the package
// documentation for the session families and what they share.
type Session struct {
	buildID    string
	registry   *Registry
	reporter   Reporter
	console    Sink
	workingDir string
	env        *Environment
	secrets    *secret.Table
	variables  map[string]string
	publisher  Publisher
	downloader Downloader
	clock      clock.Clock
	logger     *slog.Logger

	// Shared with descendants (the signal only with non-on-cancel
	// descendants).
	signal    *cancellation
	pool      *workerPool
	processes *processTracker

	// Per session.
	outcome  *outcomeState
	started  atomic.Bool
	done     chan struct{}
	ownsPool bool
}

// cancellation is the build's one-shot cancel signal.
type cancellation struct {
	ctx    context.Context
	cancel context.CancelFunc
	fired  atomic.Bool
}

func newCancellation() *cancellation {
	ctx, cancel := context.WithCancel(context.Background())
	return &cancellation{ctx: ctx, cancel: cancel}
}

// fire signals cancellation and reports whether this call did it.
func (c *cancellation) fire() bool {
	if !c.fired.CompareAndSwap(false, true) {
		return false
	}
	c.cancel()
	return true
}

type outcomeState struct {
	mu    sync.Mutex
	value buildcommand.Outcome
}

func (o *outcomeState) get() buildcommand.Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

func (o *outcomeState) merge(observed buildcommand.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.value = o.value.Merge(observed)
}

// New creates the outermost session of a build.
func New(config Config) *Session {
	registry := config.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	reporter := config.Reporter
	if reporter == nil {
		reporter = NoopReporter{}
	}
	console := config.Console
	if console == nil {
		console = DiscardSink{}
	}
	workingDir := config.WorkingDir
	if workingDir == "" {
		if current, err := os.Getwd(); err == nil {
			workingDir = current
		}
	}
	secrets := config.Secrets
	if secrets == nil {
		secrets = secret.NewTable("")
	}
	sessionClock := config.Clock
	if sessionClock == nil {
		sessionClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Session{
		buildID:    config.BuildID,
		registry:   registry,
		reporter:   reporter,
		console:    redactingSink{next: console, secrets: secrets},
		workingDir: workingDir,
		env:        NewEnvironment(config.Environment),
		secrets:    secrets,
		variables:  config.Variables,
		publisher:  config.Publisher,
		downloader: config.Downloader,
		clock:      sessionClock,
		logger:     logger.With("build_id", config.BuildID),
		signal:     newCancellation(),
		pool:       newWorkerPool(),
		processes:  newProcessTracker(),
		outcome:    &outcomeState{value: buildcommand.Passed},
		done:       make(chan struct{}),
		ownsPool:   true,
	}
}

// derive returns a session sharing everything with s except the
// per-session state, which starts fresh. modify overrides further
// fields before the session is used.
func (s *Session) derive(modify func(*Session)) *Session {
	child := &Session{
		buildID:    s.buildID,
		registry:   s.registry,
		reporter:   s.reporter,
		console:    s.console,
		workingDir: s.workingDir,
		env:        s.env,
		secrets:    s.secrets,
		variables:  s.variables,
		publisher:  s.publisher,
		downloader: s.downloader,
		clock:      s.clock,
		logger:     s.logger,
		signal:     s.signal,
		pool:       s.pool,
		processes:  s.processes,
		outcome:    &outcomeState{value: buildcommand.Passed},
		done:       make(chan struct{}),
	}
	if modify != nil {
		modify(child)
	}
	return child
}

// NewTestingSession returns a session for evaluating conditions: it
// shares the build's state and cancellation signal but keeps its own
// outcome, reports nowhere, and prints to sink (nil keeps this
// session's console). Output is redacted either way.
func (s *Session) NewTestingSession(sink Sink) *Session {
	return s.derive(func(child *Session) {
		child.reporter = NoopReporter{}
		if sink != nil {
			child.console = redactingSink{next: sink, secrets: s.secrets}
		}
	})
}

// newOnCancelSession returns a session whose cancellation signal is
// fresh and never fired.
func (s *Session) newOnCancelSession() *Session {
	return s.derive(func(child *Session) {
		child.signal = newCancellation()
	})
}

// Build runs root once. The returned outcome is also reported to the
// Reporter as the build's completion. Calling Build a second time on
// the same session returns ErrSessionUsed.
//
// Whatever happens during the walk, Build reports completion, shuts
// down the worker pool if this session owns it (killing any process
// still running) and closes the completion signal Cancel waits on.
func (s *Session) Build(root *buildcommand.Command) (outcome buildcommand.Outcome, err error) {
	if !s.started.CompareAndSwap(false, true) {
		return "", ErrSessionUsed
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("build walk panicked", "panic", recovered, "stack", string(debug.Stack()))
			s.outcome.merge(buildcommand.Failed)
			outcome = s.Outcome()
			err = fmt.Errorf("build panicked: %v", recovered)
		}
		if reportErr := s.reporter.ReportCompleted(s.buildID, outcome); reportErr != nil {
			s.reportFailed("completed", reportErr)
		}
		if s.ownsPool {
			s.pool.Shutdown()
		}
		close(s.done)
	}()

	if root == nil {
		s.outcome.merge(buildcommand.Failed)
		return s.Outcome(), errors.New("build has no command tree")
	}

	root.ResetResults()
	s.logger.Info("build started", "command", root.Name, "working_dir", s.workingDir)
	start := s.clock.Now()

	if _, walkErr := s.ProcessCommand(root); walkErr != nil {
		var malformed *buildcommand.MalformedCommandError
		if errors.As(walkErr, &malformed) {
			s.Printf("Build aborted: %v", malformed)
		}
		s.outcome.merge(buildcommand.Failed)
		err = walkErr
	}

	outcome = s.Outcome()
	s.logger.Info("build finished", "outcome", outcome, "duration", clock.Since(s.clock, start))
	return outcome, err
}

// ProcessCommand evaluates one node in this session: gating, dispatch,
// result bookkeeping and the on-cancel hook. The boolean is the node's
// local success; a skipped node counts as success. The error is
// non-nil only for a malformed tree, which must abort the build.
func (s *Session) ProcessCommand(command *buildcommand.Command) (bool, error) {
	if s.IsCancelled() {
		s.markCancelled(command)
		return false, nil
	}

	if !command.RunIfConfig.Allows(s.Outcome()) {
		return true, nil
	}

	if command.Test != nil {
		guard := s.NewTestingSession(nil)
		if _, err := guard.ProcessCommand(command.Test); err != nil {
			return false, err
		}
		if guard.Outcome() != buildcommand.Passed && !s.IsCancelled() {
			return true, nil
		}
	}

	if s.IsCancelled() {
		s.markCancelled(command)
		return false, nil
	}

	executor, ok := s.registry.Lookup(command.Name)
	if !ok {
		s.logger.Error("unsupported command kind", "command", command.Name)
		s.Printf("Command %q is not supported by this agent. Please upgrade the agent to match the server version.", command.Name)
		command.RecordOutcome(buildcommand.Failed)
		s.outcome.merge(buildcommand.Failed)
		return false, nil
	}

	success, err := s.dispatch(executor, command)
	if err != nil {
		var malformed *buildcommand.MalformedCommandError
		if errors.As(err, &malformed) {
			command.RecordOutcome(buildcommand.Failed)
			return false, err
		}
		s.logger.Error("command failed with error", "command", command.Name, "error", s.secrets.Redact(err.Error()))
		s.Printf("Error while executing %s: %v", command.Name, err)
		success = false
	}

	if s.IsCancelled() {
		if command.OnCancel != nil {
			s.runOnCancel(command)
		}
		s.markCancelled(command)
		return false, nil
	}

	if !success {
		command.RecordOutcome(buildcommand.Failed)
		s.outcome.merge(buildcommand.Failed)
		return false, nil
	}
	command.RecordOutcome(buildcommand.Passed)
	return true, nil
}

// dispatch runs an executor, converting a panic into an error.
func (s *Session) dispatch(executor Executor, command *buildcommand.Command) (success bool, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("command panicked", "command", command.Name, "panic", recovered, "stack", string(debug.Stack()))
			success = false
			err = fmt.Errorf("%s panicked: %v", command.Name, recovered)
		}
	}()
	return executor.Execute(command, s)
}

func (s *Session) runOnCancel(command *buildcommand.Command) {
	s.logger.Info("running on-cancel command", "command", command.Name, "on_cancel", command.OnCancel.Name)
	cleanup := s.newOnCancelSession()
	if _, err := cleanup.ProcessCommand(command.OnCancel); err != nil {
		s.logger.Error("on-cancel command is malformed", "command", command.OnCancel.Name, "error", err)
		s.Printf("On-cancel command could not run: %v", err)
	}
}

func (s *Session) markCancelled(command *buildcommand.Command) {
	command.RecordOutcome(buildcommand.Cancelled)
	s.outcome.merge(buildcommand.Cancelled)
}

// Cancel signals cancellation to every session of the build, waits up
// to timeout for Build to finish, then kills any process group the
// build still has running. It returns whether Build finished within
// the timeout. Only the first call does anything; later calls return
// true at once.
func (s *Session) Cancel(timeout time.Duration) bool {
	if !s.signal.fire() {
		return true
	}
	s.logger.Info("build cancellation requested", "timeout", timeout)

	completed := false
	select {
	case <-s.done:
		completed = true
	case <-s.clock.After(timeout):
		s.logger.Warn("build did not finish within cancel timeout", "timeout", timeout)
	}

	s.processes.killAll(s.logger)
	return completed
}

// IsCancelled reports whether the build's cancellation signal has fired.
func (s *Session) IsCancelled() bool {
	return s.signal.ctx.Err() != nil
}

// Context is cancelled when the build is cancelled. On-cancel sessions
// return a context that is never cancelled.
func (s *Session) Context() context.Context {
	return s.signal.ctx
}

// Done is closed when Build has finished, including its cleanup.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Outcome returns the session's outcome so far.
func (s *Session) Outcome() buildcommand.Outcome {
	return s.outcome.get()
}

// ResolveRelativeDir resolves a chain of directories against the
// session's base directory. Parts are folded from the right: starting
// with the last part, each part to the left is prefixed only while the
// accumulated path is still relative. Empty parts are skipped. A path
// still relative after the fold is anchored at the base directory.
func (s *Session) ResolveRelativeDir(parts ...string) string {
	resolved := ""
	for index := len(parts) - 1; index >= 0; index-- {
		if resolved != "" && filepath.IsAbs(resolved) {
			break
		}
		if parts[index] == "" {
			continue
		}
		resolved = filepath.Join(parts[index], resolved)
	}
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(s.workingDir, resolved)
	}
	return filepath.Clean(resolved)
}

// WorkingDir returns the session's base directory.
func (s *Session) WorkingDir() string {
	return s.workingDir
}

// BuildID returns the build's identifier.
func (s *Session) BuildID() string {
	return s.buildID
}

// Environment returns the build's shared environment.
func (s *Session) Environment() *Environment {
	return s.env
}

// Secrets returns the build's shared secret table.
func (s *Session) Secrets() *secret.Table {
	return s.secrets
}

// Logger returns the session's logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// Clock returns the session's clock.
func (s *Session) Clock() clock.Clock {
	return s.clock
}

// Console returns the session's redacting console.
func (s *Session) Console() Sink {
	return s.console
}

// Println writes an agent message: the line framed with MessagePrefix.
func (s *Session) Println(line string) {
	s.console.ConsumeLine(MessagePrefix + line)
}

// Printf formats an agent message and writes it like Println.
func (s *Session) Printf(format string, args ...any) {
	s.Println(fmt.Sprintf(format, args...))
}

// reportFailed logs and shows a reporter error. Reporting never
// changes the build outcome.
func (s *Session) reportFailed(what string, err error) {
	s.logger.Error("reporting job status failed", "report", what, "error", err)
	s.Printf("Could not report job status %s to the server: %v", what, err)
}
