// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitError carries a specific process exit status out of run(). A nil
// Err exits silently with Code, which is how a finished build reports a
// failed or cancelled outcome that was already printed to the console.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Exit returns an error that makes Fatal exit with code and no message.
func Exit(code int) error {
	return &ExitError{Code: code}
}

// ExitCode maps an error returned from run() to a process exit status:
// 0 for nil, the carried code for an *ExitError, and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// Fatal writes "error: err" to stderr and exits with ExitCode(err). Use
// it in main() for errors from run() where the structured logger may
// not be initialized.
func Fatal(err error) {
	os.Exit(report(os.Stderr, err))
}

func report(w io.Writer, err error) int {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
	}
	return ExitCode(err)
}
