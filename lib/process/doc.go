// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for the build
// agent. These functions centralize the raw I/O that happens before the
// structured logger exists or after main() has given up:
//
//   - Fatal error reporting to stderr when the logger may not be
//     initialized (pre-logger).
//   - Process exit with a status derived from the error, so a failed
//     build can end the process with a distinct code without printing
//     a second message.
package process
