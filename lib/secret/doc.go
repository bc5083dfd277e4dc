// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds the secret values a build registers and redacts
// them from everything the build prints.
//
// [Table] maps each registered literal to its substitution text
// (default [DefaultMask]). A build session shares one Table with all of
// its nested sessions; entries are only ever added. [Table.Redact]
// rewrites a console line, and [Table.Substitution] tells the process
// launcher which command-line arguments must be displayed masked.
//
// Literals are copied into a [Buffer]: memory allocated with
// mmap(MAP_ANONYMOUS) outside the Go heap, locked against swap and
// excluded from core dumps, zeroed on Close. When the kernel refuses
// the lock (RLIMIT_MEMLOCK exhausted) the table keeps an ordinary heap
// copy instead of failing the build.
//
// Depends on golang.org/x/sys/unix.
package secret
