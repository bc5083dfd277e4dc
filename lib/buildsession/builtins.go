// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildsession

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/buildagent/lib/buildcommand"
)

// secureDisplay replaces the value of a secure variable in messages.
const secureDisplay = "********"

// executeEcho prints its lines after ${name} substitution from the
// build variables.
func executeEcho(command *buildcommand.Command, session *Session) (bool, error) {
	lines := command.StringsArg("lines")
	if line := command.StringArg("line"); line != "" {
		lines = append(lines, line)
	}
	for _, line := range lines {
		session.console.ConsumeLine(expandVariables(line, session.variables))
	}
	return true, nil
}

func executeFail(command *buildcommand.Command, session *Session) (bool, error) {
	if message := command.StringArg("message"); message != "" {
		session.console.ConsumeLine(message)
	}
	return false, nil
}

// executeExport sets an environment variable for the rest of the
// build, or prints its current value when no value is given. Secure
// values are registered as secrets and never printed.
func executeExport(command *buildcommand.Command, session *Session) (bool, error) {
	name := command.StringArg("name")
	if name == "" {
		return false, errors.New("export needs a variable name")
	}
	secure := command.BoolArg("secure")

	if !command.HasArg("value") {
		current, ok := session.env.Lookup(name)
		switch {
		case !ok:
			session.Printf("environment variable '%s' is not set", name)
		case secure:
			session.Printf("environment variable '%s' has value '%s'", name, secureDisplay)
		default:
			session.Printf("environment variable '%s' has value '%s'", name, current)
		}
		return true, nil
	}

	value := command.StringArg("value")
	display := value
	if secure {
		session.secrets.Add(value, "")
		display = secureDisplay
	}

	if _, exists := session.env.Lookup(name); exists {
		session.Printf("overriding environment variable '%s' with value '%s'", name, display)
	} else {
		session.Printf("setting environment variable '%s' to value '%s'", name, display)
	}
	session.env.Set(name, value)
	return true, nil
}

func executeSecret(command *buildcommand.Command, session *Session) (bool, error) {
	session.secrets.Add(command.StringArg("value"), command.StringArg("substitution"))
	return true, nil
}

// executeMkdirs creates a directory and its parents. An existing path
// fails the node.
func executeMkdirs(command *buildcommand.Command, session *Session) (bool, error) {
	path := session.ResolveRelativeDir(command.WorkingDirectory, command.StringArg("path"))
	if _, err := os.Stat(path); err == nil {
		session.Printf("Cannot create directory %q: it already exists", path)
		return false, nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return false, fmt.Errorf("creating directory: %w", err)
	}
	return true, nil
}

// executeCleandir removes everything under a directory except the
// allowed entries, which are paths relative to it. Directories on the
// way to an allowed entry are kept and cleaned recursively. A missing
// directory has nothing to clean.
func executeCleandir(command *buildcommand.Command, session *Session) (bool, error) {
	root := session.ResolveRelativeDir(command.WorkingDirectory, command.StringArg("path"))
	allowed := command.StringsArg("allowed")

	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		session.logger.Debug("cleandir target does not exist", "path", root)
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("inspecting %s: %w", root, err)
	}
	if !info.IsDir() {
		session.Printf("Cannot clean %q: not a directory", root)
		return false, nil
	}

	if len(allowed) > 0 {
		session.Printf("Cleaning directory %q, keeping %v", root, allowed)
	} else {
		session.Printf("Cleaning directory %q", root)
	}
	if err := cleanDirectory(root, allowed); err != nil {
		return false, fmt.Errorf("cleaning %s: %w", root, err)
	}
	return true, nil
}

func cleanDirectory(root string, allowed []string) error {
	keep := make(map[string]bool)
	onTheWay := make(map[string]bool)
	for _, entry := range allowed {
		entry = filepath.Clean(entry)
		if entry == "." || filepath.IsAbs(entry) {
			continue
		}
		keep[entry] = true
		for parent := filepath.Dir(entry); parent != "."; parent = filepath.Dir(parent) {
			onTheWay[parent] = true
		}
	}

	var clean func(relative string) error
	clean = func(relative string) error {
		entries, err := os.ReadDir(filepath.Join(root, relative))
		if err != nil {
			return err
		}
		for _, entry := range entries {
			child := filepath.Join(relative, entry.Name())
			switch {
			case keep[child]:
			case onTheWay[child] && entry.IsDir():
				if err := clean(child); err != nil {
					return err
				}
			default:
				if err := os.RemoveAll(filepath.Join(root, child)); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return clean("")
}

func executeReportCurrentStatus(command *buildcommand.Command, session *Session) (bool, error) {
	state, err := ParseJobState(command.StringArg("status"))
	if err != nil {
		return false, err
	}
	if err := session.reporter.ReportBuildStatus(session.buildID, state); err != nil {
		session.reportFailed(string(state), err)
	}
	return true, nil
}

func executeReportCompleting(command *buildcommand.Command, session *Session) (bool, error) {
	if err := session.reporter.ReportCompleting(session.buildID, session.Outcome()); err != nil {
		session.reportFailed(string(Completing), err)
	}
	return true, nil
}
