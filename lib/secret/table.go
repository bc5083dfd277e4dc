// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"sort"
	"strings"
	"sync"
)

// DefaultMask replaces a secret whose substitution was not given.
const DefaultMask = "******"

// Table maps secret literals to the text shown in their place. It is
// safe for concurrent use. Entries can be added or have their
// substitution replaced, never removed, until Close.
type Table struct {
	mu      sync.RWMutex
	mask    string
	entries []*entry
}

type entry struct {
	// protected holds the literal when mlock succeeded; plain holds it
	// otherwise.
	protected    *Buffer
	plain        []byte
	substitution string
}

func (e *entry) literal() string {
	if e.protected != nil {
		return e.protected.String()
	}
	return string(e.plain)
}

func (e *entry) length() int {
	if e.protected != nil {
		return e.protected.Len()
	}
	return len(e.plain)
}

// NewTable returns an empty table. An empty mask selects DefaultMask.
func NewTable(mask string) *Table {
	if mask == "" {
		mask = DefaultMask
	}
	return &Table{mask: mask}
}

// Mask returns the substitution used when Add is given none.
func (t *Table) Mask() string {
	return t.mask
}

// Add registers value. An empty substitution selects the table's mask.
// Adding a value that is already registered replaces its substitution.
// Empty values are ignored: redacting "" would rewrite every line.
func (t *Table) Add(value, substitution string) {
	if value == "" {
		return
	}
	if substitution == "" {
		substitution = t.mask
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, existing := range t.entries {
		if existing.literal() == value {
			existing.substitution = substitution
			return
		}
	}

	added := &entry{substitution: substitution}
	if buffer, err := NewFromBytes([]byte(value)); err == nil {
		added.protected = buffer
	} else {
		added.plain = []byte(value)
	}
	t.entries = append(t.entries, added)

	// Longest first, so a secret containing another secret is replaced
	// whole rather than leaving a partial match behind.
	sort.SliceStable(t.entries, func(i, j int) bool {
		return t.entries[i].length() > t.entries[j].length()
	})
}

// Substitution reports the display text for an exact registered value.
func (t *Table) Substitution(value string) (string, bool) {
	if value == "" {
		return "", false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, existing := range t.entries {
		if existing.literal() == value {
			return existing.substitution, true
		}
	}
	return "", false
}

// Redact replaces every occurrence of every registered value in line.
func (t *Table) Redact(line string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, existing := range t.entries {
		literal := existing.literal()
		if strings.Contains(line, literal) {
			line = strings.ReplaceAll(line, literal, existing.substitution)
		}
	}
	return line
}

// Len returns the number of registered values.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Close releases protected memory and forgets every value. A closed
// table redacts nothing.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstError error
	for _, existing := range t.entries {
		if existing.protected != nil {
			if err := existing.protected.Close(); err != nil && firstError == nil {
				firstError = err
			}
		}
		Zero(existing.plain)
	}
	t.entries = nil
	return firstError
}
