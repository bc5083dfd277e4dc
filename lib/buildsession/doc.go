// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package buildsession interprets build command trees.
//
// A [Session] walks a [buildcommand.Command] tree depth first,
// dispatching each node to the [Executor] its kind names in a
// [Registry]. Before dispatch every node passes four gates, in order:
// its run-if policy against the outcome so far, its test guard
// (evaluated in a throwaway testing session), and a cancellation
// check. After dispatch the node's result is recorded, and if the
// build was cancelled while the node ran its on-cancel command runs
// once in a session that the build's cancellation does not reach.
//
// Session families:
//
//   - The outermost session is created with [New] and run once with
//     [Session.Build]. It owns the worker pool that runs processes and
//     reports the build's final status.
//   - Testing sessions ([Session.NewTestingSession]) evaluate and/or/
//     cond branches and test guards. They share the environment,
//     secret table, cancellation signal, worker pool and process
//     tracker, but keep their own outcome, report nowhere, and may
//     print to a different sink (a capture buffer for string tests).
//   - On-cancel sessions share everything except the cancellation
//     signal: they get a fresh one that never fires, so cleanup
//     commands still run after a cancel. They are bounded by
//     [Session.Cancel]'s timeout and its process-group kill.
//
// All console output passes through the build's secret table before it
// reaches the sink. Agent messages are framed with the "[build] "
// prefix; process output and echo lines are printed as is.
//
// Handler failures, errors and panics fail only their own node. The
// one exception is [buildcommand.MalformedCommandError], which aborts
// the build pass because the tree itself cannot be interpreted.
package buildsession
