// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"sync"
	"testing"
)

func TestTableRedact(t *testing.T) {
	table := NewTable("")
	defer table.Close()

	table.Add("bar", "")
	table.Add("hunter2", "<password>")

	tests := []struct {
		line string
		want string
	}{
		{line: "foo:bar@ssss.com", want: "foo:******@ssss.com"},
		{line: "login with hunter2", want: "login with <password>"},
		{line: "bar bar hunter2 bar", want: "****** ****** <password> ******"},
		{line: "nothing to hide", want: "nothing to hide"},
		{line: "", want: ""},
	}
	for _, test := range tests {
		if got := table.Redact(test.line); got != test.want {
			t.Errorf("Redact(%q) = %q, want %q", test.line, got, test.want)
		}
	}
}

func TestTableRedactLongestFirst(t *testing.T) {
	table := NewTable("")
	defer table.Close()

	// The short secret is registered first; the longer one that contains
	// it must still be replaced whole.
	table.Add("abc", "[short]")
	table.Add("xabcx", "[long]")

	if got := table.Redact("xabcx and abc"); got != "[long] and [short]" {
		t.Errorf("Redact() = %q, want %q", got, "[long] and [short]")
	}
}

func TestTableAddIgnoresEmptyValue(t *testing.T) {
	table := NewTable("")
	defer table.Close()

	table.Add("", "x")
	if table.Len() != 0 {
		t.Fatalf("Len() = %d after adding empty value, want 0", table.Len())
	}
	if got := table.Redact("unchanged"); got != "unchanged" {
		t.Errorf("Redact() = %q, want unchanged", got)
	}
}

func TestTableAddReplacesSubstitution(t *testing.T) {
	table := NewTable("")
	defer table.Close()

	table.Add("token", "first")
	table.Add("token", "second")

	if table.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", table.Len())
	}
	substitution, ok := table.Substitution("token")
	if !ok || substitution != "second" {
		t.Errorf("Substitution(token) = %q, %v; want second, true", substitution, ok)
	}
}

func TestTableSubstitutionExactMatchOnly(t *testing.T) {
	table := NewTable("####")
	defer table.Close()

	table.Add("s3cr3t", "")

	if substitution, ok := table.Substitution("s3cr3t"); !ok || substitution != "####" {
		t.Errorf("Substitution(s3cr3t) = %q, %v; want ####, true", substitution, ok)
	}
	if _, ok := table.Substitution("--password=s3cr3t"); ok {
		t.Error("Substitution matched a value that only contains the secret")
	}
	if _, ok := table.Substitution(""); ok {
		t.Error("Substitution matched the empty string")
	}
}

func TestTableCloseForgetsValues(t *testing.T) {
	table := NewTable("")
	table.Add("value", "")
	if err := table.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if got := table.Redact("value"); got != "value" {
		t.Errorf("Redact() after Close = %q, want %q", got, "value")
	}
}

func TestTableConcurrentAddAndRedact(t *testing.T) {
	table := NewTable("")
	defer table.Close()

	var group sync.WaitGroup
	for index := range 8 {
		group.Add(2)
		go func() {
			defer group.Done()
			table.Add(string(rune('a'+index))+"-secret", "")
		}()
		go func() {
			defer group.Done()
			table.Redact("a-secret b-secret")
		}()
	}
	group.Wait()

	if got := table.Redact("a-secret b-secret"); got != "****** ******" {
		t.Errorf("Redact() = %q, want %q", got, "****** ******")
	}
}
