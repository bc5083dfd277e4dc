// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/bureau-foundation/buildagent/lib/config"
	"github.com/bureau-foundation/buildagent/lib/sealed"
	"github.com/bureau-foundation/buildagent/lib/secret"
)

// secretsConfig returns the secrets section of the configuration when
// one is available, and an empty section when neither --config nor
// BUILDAGENT_CONFIG names a file.
func secretsConfig(configPath string) (config.SecretsConfig, error) {
	if configPath == "" && os.Getenv(config.EnvVar) == "" {
		return config.SecretsConfig{}, nil
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return config.SecretsConfig{}, err
	}
	return cfg.Secrets, nil
}

// runKeygen writes a new age identity file and prints its public key.
// The private key never reaches stdout or stderr.
func (a *agent) runKeygen(args []string) error {
	var configPath, identityPath string
	flagSet := a.newFlagSet("keygen", &configPath)
	flagSet.StringVar(&identityPath, "identity", "", "where to write the identity file (default: secrets.identity)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if identityPath == "" {
		secrets, err := secretsConfig(configPath)
		if err != nil {
			return err
		}
		identityPath = secrets.Identity
	}
	if identityPath == "" {
		return errors.New("no identity path: pass --identity or set secrets.identity")
	}

	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return fmt.Errorf("generating keypair: %w", err)
	}
	defer keypair.Close()

	file, err := os.OpenFile(identityPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}
	content := sealed.FormatIdentityFile(keypair)
	_, writeErr := file.Write(content)
	secret.Zero(content)
	if closeErr := file.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(identityPath)
		return fmt.Errorf("writing identity file: %w", writeErr)
	}

	a.logger.Info("agent identity created", "path", identityPath)
	fmt.Fprintln(a.stdout, keypair.PublicKey)
	return nil
}

// runSeal encrypts one value into the sealed-variables file. The value
// is read from --value-file ("-" for the first line of stdin), never
// from the command line.
func (a *agent) runSeal(args []string) error {
	var configPath, identityPath, variablesPath, valuePath string
	var recipients []string
	flagSet := a.newFlagSet("seal", &configPath)
	flagSet.StringSliceVar(&recipients, "recipient", nil, "age public key to seal to (repeatable; default: the agent identity's key)")
	flagSet.StringVar(&identityPath, "identity", "", "identity file whose public key is the default recipient (default: secrets.identity)")
	flagSet.StringVar(&variablesPath, "file", "", "sealed-variables file (default: secrets.sealed_variables)")
	flagSet.StringVar(&valuePath, "value-file", "-", "file holding the value, or - for stdin")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("seal takes exactly one variable name")
	}
	name := flagSet.Arg(0)

	secrets, err := secretsConfig(configPath)
	if err != nil {
		return err
	}
	if identityPath == "" {
		identityPath = secrets.Identity
	}
	if variablesPath == "" {
		variablesPath = secrets.SealedVariables
	}
	if variablesPath == "" {
		return errors.New("no sealed-variables file: pass --file or set secrets.sealed_variables")
	}

	if len(recipients) == 0 {
		recipient, err := identityRecipient(identityPath)
		if err != nil {
			return err
		}
		recipients = []string{recipient}
	}
	for _, recipient := range recipients {
		if err := sealed.ParsePublicKey(recipient); err != nil {
			return err
		}
	}

	value, err := secret.ReadFromPath(valuePath)
	if err != nil {
		return fmt.Errorf("reading value: %w", err)
	}
	defer value.Close()

	variables, err := sealed.LoadVariables(variablesPath)
	if err != nil {
		return err
	}
	_, replacing := variables[name]
	if err := variables.Seal(name, value.Bytes(), recipients); err != nil {
		return err
	}
	if err := variables.Save(variablesPath); err != nil {
		return fmt.Errorf("saving sealed variables: %w", err)
	}

	a.logger.Info("variable sealed", "name", name, "file", variablesPath, "replaced", replacing, "recipients", len(recipients))
	return nil
}

func identityRecipient(identityPath string) (string, error) {
	if identityPath == "" {
		return "", errors.New("no recipient: pass --recipient, --identity or set secrets.identity")
	}
	identity, err := secret.ReadFromPath(identityPath)
	if err != nil {
		return "", fmt.Errorf("reading agent identity: %w", err)
	}
	defer identity.Close()
	return sealed.PublicKeyOf(identity)
}
