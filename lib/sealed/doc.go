// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed stores secure build variables encrypted with age, so
// credentials a build needs can sit in the agent's configuration
// directory without being readable there.
//
// A sealed-variables file is a YAML map from variable name to a
// base64-encoded age ciphertext. Operators create entries with
// "buildagent seal", which encrypts to the agent's public key; the
// agent unseals them with its identity file when a build starts and
// exports each one as a secure variable, registering the value for
// redaction.
//
// Key exports:
//
//   - [GenerateKeypair] and [FormatIdentityFile] -- agent identity
//   - [Encrypt] / [Decrypt] -- single values
//   - [Variables] with [LoadVariables], Seal, Unseal and Save -- the file
//   - [ParsePublicKey] / [ParsePrivateKey] -- key validation
//   - [PublicKeyOf] -- the recipient an identity file decrypts for
//
// Private keys and decrypted plaintext live in [secret.Buffer] values
// backed by mmap memory outside the Go heap (locked against swap,
// excluded from core dumps, zeroed on Close).
package sealed
