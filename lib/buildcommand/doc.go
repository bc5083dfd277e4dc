// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package buildcommand defines the build command tree that the build
// agent interprets.
//
// A [Command] is one build step: a kind name that selects a handler,
// an argument map, ordered children, and three optional modifiers. The
// modifiers are a run-if policy gating on the build outcome so far, a
// test guard that skips the step unless it passes, and an on-cancel
// command run once if the step observes cancellation. Each node also
// carries result bookkeeping (outcome, exit code, duration), written
// once per build pass by the interpreter in lib/buildsession.
//
// Trees are built with the constructor functions in this package
// ([Exec], [Task], [Cond], ...) or decoded from JSON/JSONC with
// [Parse] and [ParseFile]. The tree's shape is immutable once a build
// starts; only the result fields change.
package buildcommand
