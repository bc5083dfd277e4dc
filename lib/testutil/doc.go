// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern used when a test waits on a build goroutine, so individual
// tests never hang forever on a stuck build. [UniqueID] produces
// distinct identifiers (build IDs, file names) without consulting the
// wall clock. [WaitFor] polls a condition, for tests that wait on
// console output produced by a running process.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
