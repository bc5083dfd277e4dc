// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"maps"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.zip")
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	writer := zip.NewWriter(file)
	for _, name := range slices.Sorted(maps.Keys(entries)) {
		entry, err := writer.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := entry.Write([]byte(entries[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	if err := file.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractZip(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"bin/":          "",
		"bin/tool":      "tool",
		"share/doc/a":   "a",
		"top-level.txt": "top",
	})
	destination := filepath.Join(t.TempDir(), "out")

	written, err := ExtractZip(archive, destination)
	if err != nil {
		t.Fatalf("ExtractZip() error: %v", err)
	}
	if diff := cmp.Diff([]string{"bin/tool", "share/doc/a", "top-level.txt"}, written); diff != "" {
		t.Errorf("written files mismatch (-want +got):\n%s", diff)
	}
	data, err := os.ReadFile(filepath.Join(destination, "share", "doc", "a"))
	if err != nil || string(data) != "a" {
		t.Errorf("share/doc/a = %q, %v", data, err)
	}
}

func TestExtractZipRejectsEscapes(t *testing.T) {
	archive := writeZip(t, map[string]string{"../escape.txt": "gotcha"})
	parent := t.TempDir()
	destination := filepath.Join(parent, "out")

	if _, err := ExtractZip(archive, destination); err == nil {
		t.Fatal("ExtractZip() accepted an entry outside the destination")
	}
	if _, err := os.Stat(filepath.Join(parent, "escape.txt")); err == nil {
		t.Error("escaping entry was written")
	}
}

func TestExtractZipNotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ExtractZip(path, t.TempDir()); err == nil {
		t.Error("ExtractZip() accepted a non-archive")
	}
}
