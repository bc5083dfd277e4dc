// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildcommand

import "fmt"

// Outcome is the tri-state result of a node or of a whole build.
type Outcome string

const (
	Passed    Outcome = "passed"
	Failed    Outcome = "failed"
	Cancelled Outcome = "cancelled"
)

// Merge folds a newly observed result into o. Cancelled is sticky and
// Failed replaces Passed; nothing moves a build back to Passed.
func (o Outcome) Merge(observed Outcome) Outcome {
	switch {
	case o == Cancelled || observed == Cancelled:
		return Cancelled
	case o == Failed || observed == Failed:
		return Failed
	default:
		return Passed
	}
}

// RunIf is a node's conditional-run policy, compared against the
// enclosing session's outcome before the node is dispatched.
type RunIf string

const (
	RunIfAny    RunIf = "any"
	RunIfPassed RunIf = "passed"
	RunIfFailed RunIf = "failed"
)

// Allows reports whether a node with this policy runs when the build
// outcome so far is current. The empty policy behaves as RunIfPassed.
func (r RunIf) Allows(current Outcome) bool {
	switch r {
	case RunIfAny:
		return true
	case RunIfFailed:
		return current != Passed
	default:
		return current != Failed
	}
}

func (r RunIf) valid() bool {
	switch r {
	case "", RunIfAny, RunIfPassed, RunIfFailed:
		return true
	}
	return false
}

// MalformedCommandError reports a command tree that cannot be
// interpreted, such as a test node with an unknown comparison flag.
// Unlike an unsupported command kind, which fails only its own node, a
// malformed command aborts the build pass.
type MalformedCommandError struct {
	Kind   string
	Reason string
}

func (e *MalformedCommandError) Error() string {
	return fmt.Sprintf("malformed %s command: %s", e.Kind, e.Reason)
}
