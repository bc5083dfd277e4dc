// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the agent's CBOR configuration. The local
// artifact store persists its manifest with it; everything else the
// agent reads or writes (command trees, configuration, result logs) is
// JSON, JSONC or YAML.
//
// The encoder uses Core Deterministic Encoding, so the same manifest
// always produces identical bytes:
//
//	data, err := codec.Marshal(manifest)
//	err = codec.Unmarshal(data, &manifest)
//
// Types use `json` struct tags only. fxamacker/cbor falls back to them
// when `cbor` tags are absent, which keeps one set of field names for
// the store file and for the CLI's JSON output.
package codec
