// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/buildagent/lib/secret"
)

// Variables maps build variable names to base64 age ciphertexts. It is
// stored as a flat YAML map.
type Variables map[string]string

// LoadVariables reads a sealed-variables file. A missing file is an
// empty set.
func LoadVariables(path string) (Variables, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Variables{}, nil
	}
	if err != nil {
		return nil, err
	}
	variables := Variables{}
	if err := yaml.Unmarshal(data, &variables); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return variables, nil
}

// Save writes the variables to path, replacing it atomically.
func (v Variables) Save(path string) error {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range slices.Sorted(maps.Keys(v)) {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: v[name]},
		)
	}
	data, err := yaml.Marshal(node)
	if err != nil {
		return fmt.Errorf("encoding sealed variables: %w", err)
	}

	temporary, err := os.CreateTemp(filepath.Dir(path), ".sealed-*")
	if err != nil {
		return err
	}
	defer os.Remove(temporary.Name())
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return err
	}
	if err := temporary.Close(); err != nil {
		return err
	}
	return os.Rename(temporary.Name(), path)
}

// Seal encrypts value to the recipients and stores it under name.
func (v Variables) Seal(name string, value []byte, recipientKeys []string) error {
	if name == "" {
		return errors.New("variable name is required")
	}
	ciphertext, err := Encrypt(value, recipientKeys)
	if err != nil {
		return fmt.Errorf("sealing %s: %w", name, err)
	}
	v[name] = ciphertext
	return nil
}

// Unseal decrypts every variable with privateKey and calls visit with
// each name and plaintext in name order. The plaintext buffer is closed
// when visit returns, so visit must copy what it keeps.
func (v Variables) Unseal(privateKey *secret.Buffer, visit func(name string, value []byte) error) error {
	for _, name := range slices.Sorted(maps.Keys(v)) {
		buffer, err := Decrypt(v[name], privateKey)
		if err != nil {
			return fmt.Errorf("unsealing %s: %w", name, err)
		}
		var value []byte
		if buffer != nil {
			value = buffer.Bytes()
		}
		err = visit(name, value)
		if buffer != nil {
			buffer.Close()
		}
		if err != nil {
			return err
		}
	}
	return nil
}
