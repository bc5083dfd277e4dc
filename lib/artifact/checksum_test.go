// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const emptyMD5 = "d41d8cd98f00b204e9800998ecf8427e"

func TestParseChecksums(t *testing.T) {
	digest := HashBytes([]byte("content"))
	input := "# checksum file\n\nlib/a.jar=" + digest + "\n  docs/readme = " + strings.ToUpper(emptyMD5) + "  \n"

	checksums, err := ParseChecksums(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseChecksums() error: %v", err)
	}
	want := Checksums{"lib/a.jar": digest, "docs/readme": emptyMD5}
	if diff := cmp.Diff(want, checksums); diff != "" {
		t.Errorf("checksums mismatch (-want +got):\n%s", diff)
	}
}

func TestParseChecksumsRejectsBadLines(t *testing.T) {
	for _, input := range []string{
		"no separator",
		"=" + emptyMD5,
		"short=abc",
		"nothex=" + strings.Repeat("z", 32),
	} {
		if _, err := ParseChecksums(strings.NewReader(input)); err == nil {
			t.Errorf("ParseChecksums(%q) succeeded, want error", input)
		}
	}
}

func TestChecksumsWriteToRoundTrip(t *testing.T) {
	checksums := Checksums{
		"z/last":  HashBytes([]byte("z")),
		"a/first": emptyMD5,
	}
	var buffer bytes.Buffer
	if _, err := checksums.WriteTo(&buffer); err != nil {
		t.Fatalf("WriteTo() error: %v", err)
	}
	if !strings.HasPrefix(buffer.String(), "a/first=") {
		t.Errorf("WriteTo() not sorted:\n%s", buffer.String())
	}
	parsed, err := ParseChecksums(&buffer)
	if err != nil {
		t.Fatalf("ParseChecksums() error: %v", err)
	}
	if diff := cmp.Diff(checksums, parsed); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestChecksumsVerify(t *testing.T) {
	directory := t.TempDir()
	content := filepath.Join(directory, "content")
	if err := os.WriteFile(content, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	empty := filepath.Join(directory, "empty")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	checksums := Checksums{
		"content": HashBytes([]byte("content")),
		"empty":   emptyMD5,
		"wrong":   HashBytes([]byte("other")),
	}

	tests := []struct {
		name     string
		path     string
		local    string
		verified bool
		wantErr  bool
	}{
		{name: "blake3", path: "content", local: content, verified: true},
		{name: "md5", path: "empty", local: empty, verified: true},
		{name: "no entry", path: "absent", local: content, verified: false},
		{name: "mismatch", path: "wrong", local: content, wantErr: true},
		{name: "missing local file", path: "content", local: filepath.Join(directory, "gone"), wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			verified, err := checksums.Verify(test.path, test.local)
			if (err != nil) != test.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, test.wantErr)
			}
			if verified != test.verified {
				t.Errorf("Verify() = %v, want %v", verified, test.verified)
			}
		})
	}
}

func TestHashing(t *testing.T) {
	data := []byte("the quick brown fox")
	digest := HashBytes(data)
	if len(digest) != DigestLength {
		t.Fatalf("digest length = %d, want %d", len(digest), DigestLength)
	}

	fromReader, size, err := HashReader(bytes.NewReader(data))
	if err != nil || fromReader != digest || size != int64(len(data)) {
		t.Errorf("HashReader() = %s, %d, %v; want %s, %d", fromReader, size, err, digest, len(data))
	}

	path := filepath.Join(t.TempDir(), "fox")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	fromFile, _, err := HashFile(path)
	if err != nil || fromFile != digest {
		t.Errorf("HashFile() = %s, %v; want %s", fromFile, err, digest)
	}
	if HashBytes([]byte("the quick brown fix")) == digest {
		t.Error("different content hashed to the same digest")
	}
}
