// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
)

// ReadFromPath reads a secret (an age identity, a sealed-variable key)
// from a file, or from stdin when path is "-". Surrounding whitespace
// is trimmed. The caller owns the returned Buffer and must Close it.
func ReadFromPath(path string) (*Buffer, error) {
	if path == "-" {
		return readFirstLine(os.Stdin)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading secret file: %w", err)
	}
	return protect(data)
}

// readFirstLine reads one line from reader. Used for stdin, where the
// operator pastes a single value and presses enter.
func readFirstLine(reader io.Reader) (*Buffer, error) {
	scanner := bufio.NewScanner(reader)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return nil, fmt.Errorf("stdin is empty")
	}
	return protect(scanner.Bytes())
}

// protect trims data, moves it into a Buffer and zeroes every byte of
// data, including the trimmed whitespace.
func protect(data []byte) (*Buffer, error) {
	defer Zero(data)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret is empty")
	}
	return NewFromBytes(trimmed)
}
