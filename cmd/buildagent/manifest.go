// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/buildagent/lib/codec"
)

// runManifest prints the local artifact store's manifest in CBOR
// diagnostic notation.
func (a *agent) runManifest(args []string) error {
	var configPath, storePath string
	flagSet := a.newFlagSet("manifest", &configPath)
	flagSet.StringVar(&storePath, "store", "", "artifact store directory (default: paths.artifacts)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if storePath == "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		storePath = cfg.Paths.Artifacts
	}

	data, err := os.ReadFile(filepath.Join(storePath, "manifest.cbor"))
	if err != nil {
		return fmt.Errorf("reading store manifest: %w", err)
	}
	notation, err := codec.Diagnose(data)
	if err != nil {
		return fmt.Errorf("decoding store manifest: %w", err)
	}
	fmt.Fprintln(a.stdout, notation)
	return nil
}
