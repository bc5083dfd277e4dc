// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

// Property is a named value a build publishes alongside its artifacts.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
