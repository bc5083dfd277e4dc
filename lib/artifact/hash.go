// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// DigestLength is the length of a hex-encoded BLAKE3 digest.
const DigestLength = 64

// HashReader returns the hex BLAKE3 digest of everything read from
// reader, and the number of bytes read.
func HashReader(reader io.Reader) (string, int64, error) {
	hasher := blake3.New()
	size, err := io.Copy(hasher, reader)
	if err != nil {
		return "", size, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

// HashFile returns the hex BLAKE3 digest and size of a file.
func HashFile(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	digest, size, err := HashReader(file)
	if err != nil {
		return "", 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return digest, size, nil
}

// HashBytes returns the hex BLAKE3 digest of data.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
