// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for the build
// session.
//
// The session reads the clock to measure task durations and to bound
// how long Cancel waits for a build to wind down. Production code
// passes Real(); tests pass Fake() and move time forward explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go func() { done <- session.Cancel(30 * time.Second) }()
//	c.WaitForTimers(1)          // Cancel has registered its timeout
//	c.Advance(30 * time.Second) // and now it fires
package clock
