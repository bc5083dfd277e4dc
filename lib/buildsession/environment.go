// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildsession

import (
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
)

// Environment holds the variables a build exports. It is shared by
// every session of a build; values are added or replaced, never
// removed. Processes see the agent's own environment overlaid with
// these values.
type Environment struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewEnvironment returns an environment seeded with initial.
func NewEnvironment(initial map[string]string) *Environment {
	values := make(map[string]string, len(initial))
	maps.Copy(values, initial)
	return &Environment{values: values}
}

// Set stores a variable.
func (e *Environment) Set(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values[name] = value
}

// Get returns a variable exported by the build.
func (e *Environment) Get(name string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	value, ok := e.values[name]
	return value, ok
}

// Lookup returns a variable as a process would see it: the build's
// value if exported, otherwise the agent's own.
func (e *Environment) Lookup(name string) (string, bool) {
	if value, ok := e.Get(name); ok {
		return value, true
	}
	return os.LookupEnv(name)
}

// Snapshot returns a copy of the exported variables.
func (e *Environment) Snapshot() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.values)
}

// Environ returns the process environment in os/exec form: the agent's
// environment with exported variables replacing or extending it,
// sorted by name.
func (e *Environment) Environ() []string {
	merged := make(map[string]string)
	for _, entry := range os.Environ() {
		name, value, ok := strings.Cut(entry, "=")
		if ok && name != "" {
			merged[name] = value
		}
	}
	maps.Copy(merged, e.Snapshot())

	environ := make([]string, 0, len(merged))
	for _, name := range slices.Sorted(maps.Keys(merged)) {
		environ = append(environ, name+"="+merged[name])
	}
	return environ
}
