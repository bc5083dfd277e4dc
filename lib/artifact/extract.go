// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ExtractZip unpacks the archive at archivePath into destination and
// returns the slash-separated paths of the files it wrote. Entries
// that would land outside destination are rejected.
func ExtractZip(archivePath, destination string) ([]string, error) {
	archive, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer archive.Close()

	if err := os.MkdirAll(destination, 0o755); err != nil {
		return nil, err
	}
	root, err := filepath.Abs(destination)
	if err != nil {
		return nil, err
	}

	var written []string
	for _, entry := range archive.File {
		target := filepath.Join(root, filepath.FromSlash(entry.Name))
		if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
			return written, fmt.Errorf("archive entry %q escapes %s", entry.Name, destination)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return written, err
			}
			continue
		}
		if err := extractEntry(entry, target); err != nil {
			return written, fmt.Errorf("extracting %s: %w", entry.Name, err)
		}
		written = append(written, strings.TrimPrefix(entry.Name, "/"))
	}
	return written, nil
}

func extractEntry(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	source, err := entry.Open()
	if err != nil {
		return err
	}
	defer source.Close()

	mode := entry.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	output, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(output, source); err != nil {
		output.Close()
		return err
	}
	return output.Close()
}
