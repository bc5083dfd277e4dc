// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// buildagent runs build command trees on the local machine.
//
// Subcommands:
//
//	buildagent run [flags] <tree.jsonc>   run a command tree
//	buildagent keygen --identity <path>   create the agent's age identity
//	buildagent seal <name>                seal a secure build variable
//	buildagent manifest                   dump the local artifact store index
//
// Configuration comes from --config or the file named by
// BUILDAGENT_CONFIG. A build that fails exits 1, a malformed command
// tree exits 2 and a cancelled build exits 3.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/buildagent/lib/config"
	"github.com/bureau-foundation/buildagent/lib/process"
	"github.com/bureau-foundation/buildagent/lib/version"
)

// Exit statuses for run.
const (
	exitFailed    = 1
	exitMalformed = 2
	exitCancelled = 3
)

func main() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	agent := &agent{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		logger:     newCommandLogger(os.Stderr),
		interrupts: signals,
	}
	if err := agent.run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

// agent holds the process-level I/O the subcommands use.
type agent struct {
	stdout     io.Writer
	stderr     io.Writer
	logger     *slog.Logger
	interrupts <-chan os.Signal
}

// newCommandLogger returns a text logger on a terminal and a JSON
// logger otherwise.
func newCommandLogger(stderr *os.File) *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if term.IsTerminal(int(stderr.Fd())) {
		handler = slog.NewTextHandler(stderr, options)
	} else {
		handler = slog.NewJSONHandler(stderr, options)
	}
	return slog.New(handler)
}

func (a *agent) run(args []string) error {
	if len(args) < 1 {
		a.printUsage()
		return errors.New("subcommand required")
	}

	subcommand, rest := args[0], args[1:]
	switch subcommand {
	case "run":
		return a.runBuild(rest)
	case "keygen":
		return a.runKeygen(rest)
	case "seal":
		return a.runSeal(rest)
	case "manifest":
		return a.runManifest(rest)
	case "version", "--version":
		fmt.Fprintf(a.stdout, "buildagent %s\n", version.Info())
		return nil
	case "-h", "--help", "help":
		a.printUsage()
		return nil
	default:
		a.printUsage()
		return fmt.Errorf("unknown subcommand: %q", subcommand)
	}
}

func (a *agent) printUsage() {
	fmt.Fprintf(a.stderr, `Usage: buildagent <subcommand> [flags]

Subcommands:
  run         Run a JSONC command tree
  keygen      Generate the agent's age identity
  seal        Encrypt a secure build variable into the sealed-variables file
  manifest    Print the local artifact store manifest
  version     Print version information

Run 'buildagent <subcommand> --help' for subcommand flags.
`)
}

// newFlagSet returns a flag set with the --config flag every
// subcommand shares.
func (a *agent) newFlagSet(name string, configPath *string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.SetOutput(a.stderr)
	flagSet.StringVar(configPath, "config", "", "path to buildagent.yaml (default: $"+config.EnvVar+")")
	return flagSet
}

// loadConfig loads and validates the configuration named by path, or
// by BUILDAGENT_CONFIG when path is empty.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
