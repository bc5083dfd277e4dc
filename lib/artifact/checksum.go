// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
)

// md5DigestLength is the length of a hex MD5 digest, the format older
// servers still publish.
const md5DigestLength = 32

// Checksums maps artifact paths to their expected hex digests.
type Checksums map[string]string

// ParseChecksums reads a checksum file: one "path=hexdigest" entry per
// line. Blank lines and lines starting with '#' are skipped.
func ParseChecksums(reader io.Reader) (Checksums, error) {
	checksums := make(Checksums)
	scanner := bufio.NewScanner(reader)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		path, digest, ok := strings.Cut(line, "=")
		path = strings.TrimSpace(path)
		digest = strings.ToLower(strings.TrimSpace(digest))
		if !ok || path == "" {
			return nil, fmt.Errorf("checksum line %d: expected path=digest", lineNumber)
		}
		if len(digest) != md5DigestLength && len(digest) != DigestLength {
			return nil, fmt.Errorf("checksum line %d: digest for %s has %d characters, want %d or %d",
				lineNumber, path, len(digest), md5DigestLength, DigestLength)
		}
		if _, err := hex.DecodeString(digest); err != nil {
			return nil, fmt.Errorf("checksum line %d: digest for %s is not hex", lineNumber, path)
		}
		checksums[path] = digest
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading checksums: %w", err)
	}
	return checksums, nil
}

// WriteTo writes the checksums in the format ParseChecksums reads,
// sorted by path.
func (c Checksums) WriteTo(writer io.Writer) (int64, error) {
	var total int64
	for _, path := range slices.Sorted(maps.Keys(c)) {
		written, err := fmt.Fprintf(writer, "%s=%s\n", path, c[path])
		total += int64(written)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Verify checks the file at localPath against the entry for path. It
// reports false with no error when there is no entry to check against,
// and an error when the content does not match.
func (c Checksums) Verify(path, localPath string) (bool, error) {
	expected, ok := c[path]
	if !ok {
		return false, nil
	}

	var actual string
	switch len(expected) {
	case md5DigestLength:
		file, err := os.Open(localPath)
		if err != nil {
			return false, err
		}
		defer file.Close()
		hasher := md5.New()
		if _, err := io.Copy(hasher, file); err != nil {
			return false, fmt.Errorf("hashing %s: %w", localPath, err)
		}
		actual = hex.EncodeToString(hasher.Sum(nil))
	default:
		digest, _, err := HashFile(localPath)
		if err != nil {
			return false, err
		}
		actual = digest
	}

	if actual != expected {
		return false, fmt.Errorf("checksum mismatch for %s: expected %s, got %s", path, expected, actual)
	}
	return true, nil
}
