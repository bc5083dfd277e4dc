// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/buildagent/lib/buildsession"
	"github.com/bureau-foundation/buildagent/lib/config"
)

// consoleSink prints the build log. On a color terminal the agent's
// own messages get a styled prefix; otherwise every line is printed
// with escape sequences stripped. An optional plain copy of the log
// (always stripped) goes to logFile.
type consoleSink struct {
	mu      sync.Mutex
	out     io.Writer
	logFile io.Writer
	plain   bool
	prefix  string
}

func newConsoleSink(out io.Writer, colorMode string) *consoleSink {
	profile := colorProfile(out, colorMode)
	renderer := lipgloss.NewRenderer(out, termenv.WithProfile(profile))
	// NewRenderer re-detects the profile from out on first use.
	renderer.SetColorProfile(profile)

	style := renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	return &consoleSink{
		out:    out,
		plain:  profile == termenv.Ascii,
		prefix: style.Render(strings.TrimSpace(buildsession.MessagePrefix)) + " ",
	}
}

func colorProfile(out io.Writer, colorMode string) termenv.Profile {
	switch colorMode {
	case config.ColorNever:
		return termenv.Ascii
	case config.ColorAlways:
		return termenv.ANSI256
	}
	file, ok := out.(*os.File)
	if !ok {
		return termenv.Ascii
	}
	return termenv.NewOutput(file).EnvColorProfile()
}

func (c *consoleSink) ConsumeLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	display := line
	if c.plain {
		display = ansi.Strip(line)
	} else if rest, ok := strings.CutPrefix(line, buildsession.MessagePrefix); ok {
		display = c.prefix + rest
	}
	fmt.Fprintln(c.out, display)

	if c.logFile != nil {
		fmt.Fprintln(c.logFile, ansi.Strip(line))
	}
}
