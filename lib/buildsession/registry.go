// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildsession

import (
	"maps"
	"slices"

	"github.com/bureau-foundation/buildagent/lib/buildcommand"
)

// Executor runs one kind of command node. The boolean result is the
// node's local success; it is what and/or/cond/compose see. Returning
// an error fails the node. Returning a
// *buildcommand.MalformedCommandError aborts the whole build pass.
type Executor interface {
	Execute(command *buildcommand.Command, session *Session) (bool, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(command *buildcommand.Command, session *Session) (bool, error)

func (f ExecutorFunc) Execute(command *buildcommand.Command, session *Session) (bool, error) {
	return f(command, session)
}

// Registry maps command kinds to executors. It is built once at
// process start and shared, read-only, by every session.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry returns a registry holding a copy of executors.
func NewRegistry(executors map[string]Executor) *Registry {
	return &Registry{executors: maps.Clone(executors)}
}

// DefaultExecutors returns a fresh map of every built-in executor.
// Callers extend or override entries before passing it to NewRegistry.
func DefaultExecutors() map[string]Executor {
	return map[string]Executor{
		buildcommand.KindExec:                ExecutorFunc(executeProcess),
		buildcommand.KindAnd:                 ExecutorFunc(executeAnd),
		buildcommand.KindOr:                  ExecutorFunc(executeOr),
		buildcommand.KindCond:                ExecutorFunc(executeCond),
		buildcommand.KindTest:                ExecutorFunc(executeTest),
		buildcommand.KindTask:                ExecutorFunc(executeTask),
		buildcommand.KindCompose:             ExecutorFunc(executeCompose),
		buildcommand.KindEcho:                ExecutorFunc(executeEcho),
		buildcommand.KindFail:                ExecutorFunc(executeFail),
		buildcommand.KindExport:              ExecutorFunc(executeExport),
		buildcommand.KindSecret:              ExecutorFunc(executeSecret),
		buildcommand.KindMkdirs:              ExecutorFunc(executeMkdirs),
		buildcommand.KindCleandir:            ExecutorFunc(executeCleandir),
		buildcommand.KindReportCurrentStatus: ExecutorFunc(executeReportCurrentStatus),
		buildcommand.KindReportCompleting:    ExecutorFunc(executeReportCompleting),
		buildcommand.KindDownloadFile:        ExecutorFunc(executeDownloadFile),
		buildcommand.KindDownloadDir:         ExecutorFunc(executeDownloadDir),
		buildcommand.KindUploadArtifact:      ExecutorFunc(executeUploadArtifact),
		buildcommand.KindGenerateProperty:    ExecutorFunc(executeGenerateProperty),
	}
}

// DefaultRegistry returns a registry of the built-in executors.
func DefaultRegistry() *Registry {
	return NewRegistry(DefaultExecutors())
}

// Lookup returns the executor for a command kind.
func (r *Registry) Lookup(kind string) (Executor, bool) {
	executor, ok := r.executors[kind]
	return executor, ok
}

// Kinds returns the registered command kinds in sorted order.
func (r *Registry) Kinds() []string {
	return slices.Sorted(maps.Keys(r.executors))
}
