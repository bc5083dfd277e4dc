// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/buildagent/lib/artifact"
	"github.com/bureau-foundation/buildagent/lib/buildcommand"
	"github.com/bureau-foundation/buildagent/lib/buildsession"
	"github.com/bureau-foundation/buildagent/lib/clock"
	"github.com/bureau-foundation/buildagent/lib/config"
	"github.com/bureau-foundation/buildagent/lib/process"
	"github.com/bureau-foundation/buildagent/lib/sealed"
	"github.com/bureau-foundation/buildagent/lib/secret"
)

func (a *agent) runBuild(args []string) error {
	var (
		configPath string
		buildID    string
		workingDir string
		consoleLog string
		variables  map[string]string
	)
	flagSet := a.newFlagSet("run", &configPath)
	flagSet.StringVar(&buildID, "build-id", "", "identifier reported with every status (default: local-<unix time>)")
	flagSet.StringVar(&workingDir, "working-dir", "", "directory relative command paths resolve against (default: paths.work)")
	flagSet.StringVar(&consoleLog, "console-log", "", "also write the build log, without escape sequences, to this file")
	flagSet.StringToStringVar(&variables, "var", nil, "build variable name=value for echo substitution (repeatable)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("run takes exactly one command tree file")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}
	cancelTimeout, err := cfg.CancelTimeoutDuration()
	if err != nil {
		return err
	}

	root, err := buildcommand.ParseFile(flagSet.Arg(0))
	if err != nil {
		return &process.ExitError{Code: exitMalformed, Err: err}
	}

	realClock := clock.Real()
	if buildID == "" {
		buildID = fmt.Sprintf("local-%d", realClock.Now().Unix())
	}
	if workingDir == "" {
		workingDir = cfg.Paths.Work
	}
	logger := a.logger.With("build_id", buildID)

	secrets := secret.NewTable(cfg.Build.SecretMask)
	defer secrets.Close()
	environment := maps.Clone(cfg.Build.Env)
	if environment == nil {
		environment = map[string]string{}
	}
	if err := unsealVariables(cfg, environment, secrets); err != nil {
		return err
	}
	buildVariables := maps.Clone(cfg.Build.Variables)
	if buildVariables == nil {
		buildVariables = map[string]string{}
	}
	maps.Copy(buildVariables, variables)

	publisher, err := artifact.NewLocalPublisher(artifact.LocalPublisherConfig{
		Root:        cfg.Paths.Artifacts,
		Compression: artifact.Compression(cfg.Artifacts.Compression),
		Clock:       realClock,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	backoff, err := cfg.DownloadBackoffDuration()
	if err != nil {
		return err
	}
	downloader := artifact.NewHTTPDownloader(artifact.HTTPDownloaderConfig{
		Attempts: cfg.Artifacts.DownloadAttempts,
		Backoff:  backoff,
		Clock:    realClock,
		Logger:   logger,
	})

	console := newConsoleSink(a.stdout, cfg.Console.Color)
	if consoleLog != "" {
		file, err := os.OpenFile(consoleLog, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening console log: %w", err)
		}
		defer file.Close()
		console.logFile = file
	}

	var reporter buildsession.Reporter = buildsession.NoopReporter{}
	if cfg.Paths.ResultLog != "" {
		results, err := openResultLog(cfg.Paths.ResultLog, realClock)
		if err != nil {
			return err
		}
		defer results.Close()
		if err := results.Started(buildID); err != nil {
			logger.Warn("writing result log header failed", "error", err)
		}
		reporter = results
	}

	absoluteWorkingDir, err := filepath.Abs(workingDir)
	if err != nil {
		return err
	}
	session := buildsession.New(buildsession.Config{
		BuildID:     buildID,
		Reporter:    reporter,
		Console:     console,
		WorkingDir:  absoluteWorkingDir,
		Environment: environment,
		Secrets:     secrets,
		Variables:   buildVariables,
		Publisher:   publisher,
		Downloader:  downloader,
		Clock:       realClock,
		Logger:      a.logger,
	})

	go a.cancelOnInterrupt(session, cancelTimeout)

	outcome, err := session.Build(root)
	if err != nil {
		var malformed *buildcommand.MalformedCommandError
		if errors.As(err, &malformed) {
			return &process.ExitError{Code: exitMalformed, Err: err}
		}
		return err
	}
	switch outcome {
	case buildcommand.Passed:
		return nil
	case buildcommand.Cancelled:
		return process.Exit(exitCancelled)
	default:
		return process.Exit(exitFailed)
	}
}

// cancelOnInterrupt cancels the build on the first interrupt. It
// returns when the build finishes.
func (a *agent) cancelOnInterrupt(session *buildsession.Session, timeout time.Duration) {
	select {
	case received := <-a.interrupts:
		a.logger.Info("cancelling build", "signal", received.String(), "timeout", timeout)
		if !session.Cancel(timeout) {
			a.logger.Warn("build did not stop within the cancel timeout; process groups killed")
		}
	case <-session.Done():
	}
}

// unsealVariables decrypts the configured sealed variables into
// environment and registers every value as a secret.
func unsealVariables(cfg *config.Config, environment map[string]string, secrets *secret.Table) error {
	if cfg.Secrets.Identity == "" {
		return nil
	}
	identity, err := secret.ReadFromPath(cfg.Secrets.Identity)
	if err != nil {
		return fmt.Errorf("reading agent identity: %w", err)
	}
	defer identity.Close()

	variables, err := sealed.LoadVariables(cfg.Secrets.SealedVariables)
	if err != nil {
		return fmt.Errorf("loading sealed variables: %w", err)
	}
	return variables.Unseal(identity, func(name string, value []byte) error {
		plaintext := string(value)
		environment[name] = plaintext
		secrets.Add(plaintext, "")
		return nil
	})
}
