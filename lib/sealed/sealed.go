// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"

	"github.com/bureau-foundation/buildagent/lib/secret"
)

// Keypair holds an age x25519 keypair. The private key is stored in a
// secret.Buffer (mmap-backed, locked against swap, excluded from core
// dumps). The public key is safe to publish.
//
// The caller must call Close when the keypair is no longer needed.
type Keypair struct {
	// PrivateKey is the secret key in AGE-SECRET-KEY-1... format. It
	// must never be logged or passed on a command line.
	PrivateKey *secret.Buffer

	// PublicKey is the corresponding public key in age1... format.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair generates a new age x25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}

	// The identity's string form stays on the heap until collected;
	// the buffer is the copy the agent keeps.
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}

	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// Encrypt encrypts plaintext to one or more age public keys and returns
// the ciphertext base64-encoded, ready for a sealed-variables file.
func Encrypt(plaintext []byte, recipientKeys []string) (string, error) {
	if len(recipientKeys) == 0 {
		return "", errors.New("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// Decrypt decrypts a base64-encoded ciphertext with privateKey, which
// may hold a bare key or a whole age identity file (comment lines
// included). privateKey is borrowed, not closed.
//
// The caller must Close the returned buffer. Empty plaintext yields a
// nil buffer and no error.
func Decrypt(ciphertext string, privateKey *secret.Buffer) (*secret.Buffer, error) {
	identities, err := parseIdentities(privateKey)
	if err != nil {
		return nil, err
	}

	rawCiphertext, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return nil, fmt.Errorf("decoding base64 ciphertext: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(rawCiphertext), identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, nil
	}

	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("protecting decrypted plaintext: %w", err)
	}
	return buffer, nil
}

func parseIdentities(privateKey *secret.Buffer) ([]age.Identity, error) {
	if privateKey == nil {
		return nil, errors.New("private key is required")
	}
	identities, err := age.ParseIdentities(strings.NewReader(privateKey.String()))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return identities, nil
}

// ParsePublicKey validates an age public key string.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}

// ParsePrivateKey validates an age private key or identity file held
// in a secret.Buffer.
func ParsePrivateKey(privateKey *secret.Buffer) error {
	_, err := parseIdentities(privateKey)
	return err
}

// FormatIdentityFile renders a keypair in the layout age-keygen writes:
// a public key comment followed by the private key.
func FormatIdentityFile(keypair *Keypair) []byte {
	var file bytes.Buffer
	fmt.Fprintf(&file, "# public key: %s\n", keypair.PublicKey)
	file.Write(keypair.PrivateKey.Bytes())
	file.WriteByte('\n')
	return file.Bytes()
}

// PublicKeyOf returns the public key of the first x25519 identity in
// privateKey, so an agent can seal values to itself from its identity
// file alone.
func PublicKeyOf(privateKey *secret.Buffer) (string, error) {
	identities, err := parseIdentities(privateKey)
	if err != nil {
		return "", err
	}
	for _, identity := range identities {
		if x25519, ok := identity.(*age.X25519Identity); ok {
			return x25519.Recipient().String(), nil
		}
	}
	return "", errors.New("private key holds no x25519 identity")
}
