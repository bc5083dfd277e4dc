// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain error", errors.New("boom"), 1},
		{"silent exit", Exit(3), 3},
		{"wrapped exit", fmt.Errorf("build: %w", &ExitError{Code: 2, Err: errors.New("malformed")}), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReport(t *testing.T) {
	var stderr bytes.Buffer
	if code := report(&stderr, Exit(4)); code != 4 {
		t.Errorf("report(Exit(4)) = %d, want 4", code)
	}
	if stderr.Len() != 0 {
		t.Errorf("silent exit wrote %q", stderr.String())
	}

	code := report(&stderr, &ExitError{Code: 2, Err: errors.New("bad command tree")})
	if code != 2 {
		t.Errorf("report() = %d, want 2", code)
	}
	if got, want := stderr.String(), "error: bad command tree\n"; got != want {
		t.Errorf("stderr = %q, want %q", got, want)
	}

	stderr.Reset()
	if code := report(&stderr, errors.New("boom")); code != 1 {
		t.Errorf("report() = %d, want 1", code)
	}
	if got, want := stderr.String(), "error: boom\n"; got != want {
		t.Errorf("stderr = %q, want %q", got, want)
	}
}
