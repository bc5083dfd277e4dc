// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable [Load] reads the config path
// from.
const EnvVar = "BUILDAGENT_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local runs on a workstation.
	Development Environment = "development"
	// Staging is for agents attached to a test server.
	Staging Environment = "staging"
	// Production is for agents attached to the real build server.
	Production Environment = "production"
)

// Console color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config is the build agent configuration.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	Paths     PathsConfig     `yaml:"paths"`
	Build     BuildConfig     `yaml:"build"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	Console   ConsoleConfig   `yaml:"console"`

	// Per-environment overrides, applied after the base values.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Build     *BuildConfig     `yaml:"build,omitempty"`
	Artifacts *ArtifactsConfig `yaml:"artifacts,omitempty"`
	Console   *ConsoleConfig   `yaml:"console,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for agent data.
	Root string `yaml:"root"`

	// Work is the directory builds run in. Relative working
	// directories of commands resolve against it.
	Work string `yaml:"work"`

	// Artifacts is the local artifact store.
	Artifacts string `yaml:"artifacts"`

	// ResultLog is the JSONL file build status reports are appended
	// to.
	ResultLog string `yaml:"result_log"`
}

// BuildConfig configures how builds run.
type BuildConfig struct {
	// CancelTimeout is how long a cancelled build may take to wind
	// down, on-cancel commands included, before its processes are
	// killed. Default: 30s
	CancelTimeout string `yaml:"cancel_timeout"`

	// SecretMask replaces secrets registered without a substitution.
	// Default: ******
	SecretMask string `yaml:"secret_mask"`

	// Variables are substituted for ${name} in echo commands.
	Variables map[string]string `yaml:"variables"`

	// Env is exported to every process the build starts.
	Env map[string]string `yaml:"env"`
}

// ArtifactsConfig configures artifact transfer and storage.
type ArtifactsConfig struct {
	// Compression is the store codec: zstd, lz4 or none.
	// Default: zstd
	Compression string `yaml:"compression"`

	// DownloadAttempts bounds retries of failed downloads.
	// Default: 3
	DownloadAttempts int `yaml:"download_attempts"`

	// DownloadBackoff is the wait after the first failed attempt; later
	// waits grow linearly. Default: 2s
	DownloadBackoff string `yaml:"download_backoff"`
}

// SecretsConfig locates sealed build variables.
type SecretsConfig struct {
	// Identity is the age identity file that unseals
	// SealedVariables.
	Identity string `yaml:"identity"`

	// SealedVariables is a YAML map of variable names to age-sealed
	// values. Each one is exported as a secure variable.
	SealedVariables string `yaml:"sealed_variables"`
}

// ConsoleConfig configures console output.
type ConsoleConfig struct {
	// Color is auto, always or never. Default: auto
	Color string `yaml:"color"`
}

// Default returns the default configuration. These defaults are the
// base the config file is loaded over.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "buildagent")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:      defaultRoot,
			Work:      filepath.Join(defaultRoot, "work"),
			Artifacts: filepath.Join(defaultRoot, "artifacts"),
			ResultLog: filepath.Join(defaultRoot, "results.jsonl"),
		},
		Build: BuildConfig{
			CancelTimeout: "30s",
			SecretMask:    "******",
		},
		Artifacts: ArtifactsConfig{
			Compression:      "zstd",
			DownloadAttempts: 3,
			DownloadBackoff:  "2s",
		},
		Console: ConsoleConfig{
			Color: ColorAuto,
		},
	}
}

// Load loads configuration from the file named by BUILDAGENT_CONFIG.
// There is no fallback: if the variable is not set, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your buildagent.yaml config file, or use --config flag", EnvVar)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// Environment variables do not override config values. The only
// expansion performed is ${HOME}, ${BUILDAGENT_ROOT} and
// ${VAR:-default} in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production logs go to files and collectors, not terminals.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Console: &ConsoleConfig{Color: ColorNever},
			}
		}
	}

	if overrides == nil {
		return
	}

	if paths := overrides.Paths; paths != nil {
		setIfSet(&c.Paths.Root, paths.Root)
		setIfSet(&c.Paths.Work, paths.Work)
		setIfSet(&c.Paths.Artifacts, paths.Artifacts)
		setIfSet(&c.Paths.ResultLog, paths.ResultLog)
	}

	if build := overrides.Build; build != nil {
		setIfSet(&c.Build.CancelTimeout, build.CancelTimeout)
		setIfSet(&c.Build.SecretMask, build.SecretMask)
		c.Build.Variables = mergeMaps(c.Build.Variables, build.Variables)
		c.Build.Env = mergeMaps(c.Build.Env, build.Env)
	}

	if artifacts := overrides.Artifacts; artifacts != nil {
		setIfSet(&c.Artifacts.Compression, artifacts.Compression)
		setIfSet(&c.Artifacts.DownloadBackoff, artifacts.DownloadBackoff)
		if artifacts.DownloadAttempts != 0 {
			c.Artifacts.DownloadAttempts = artifacts.DownloadAttempts
		}
	}

	if console := overrides.Console; console != nil {
		setIfSet(&c.Console.Color, console.Color)
	}
}

func setIfSet(target *string, value string) {
	if value != "" {
		*target = value
	}
}

// mergeMaps returns base with overrides added or replacing entries.
func mergeMaps(base, overrides map[string]string) map[string]string {
	if len(overrides) == 0 {
		return base
	}
	merged := make(map[string]string, len(base)+len(overrides))
	maps.Copy(merged, base)
	maps.Copy(merged, overrides)
	return merged
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"BUILDAGENT_ROOT": c.Paths.Root,
		"HOME":            os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["BUILDAGENT_ROOT"] = c.Paths.Root

	c.Paths.Work = expandVars(c.Paths.Work, vars)
	c.Paths.Artifacts = expandVars(c.Paths.Artifacts, vars)
	c.Paths.ResultLog = expandVars(c.Paths.ResultLog, vars)
	c.Secrets.Identity = expandVars(c.Secrets.Identity, vars)
	c.Secrets.SealedVariables = expandVars(c.Secrets.SealedVariables, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, preferring
// vars over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// CancelTimeoutDuration returns Build.CancelTimeout parsed.
func (c *Config) CancelTimeoutDuration() (time.Duration, error) {
	return parsePositiveDuration("build.cancel_timeout", c.Build.CancelTimeout)
}

// DownloadBackoffDuration returns Artifacts.DownloadBackoff parsed.
func (c *Config) DownloadBackoffDuration() (time.Duration, error) {
	return parsePositiveDuration("artifacts.download_backoff", c.Artifacts.DownloadBackoff)
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return duration, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Work == "" {
		errs = append(errs, errors.New("paths.work is required"))
	}

	if _, err := c.CancelTimeoutDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.DownloadBackoffDuration(); err != nil {
		errs = append(errs, err)
	}

	if c.Build.SecretMask == "" {
		errs = append(errs, errors.New("build.secret_mask must not be empty"))
	}

	compressions := []string{"zstd", "lz4", "none"}
	if !slices.Contains(compressions, c.Artifacts.Compression) {
		errs = append(errs, fmt.Errorf("artifacts.compression must be one of: %v", compressions))
	}
	if c.Artifacts.DownloadAttempts < 1 {
		errs = append(errs, errors.New("artifacts.download_attempts must be at least 1"))
	}

	colors := []string{ColorAuto, ColorAlways, ColorNever}
	if !slices.Contains(colors, c.Console.Color) {
		errs = append(errs, fmt.Errorf("console.color must be one of: %v", colors))
	}

	if (c.Secrets.Identity == "") != (c.Secrets.SealedVariables == "") {
		errs = append(errs, errors.New("secrets.identity and secrets.sealed_variables must be set together"))
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.Work,
		c.Paths.Artifacts,
	}
	if c.Paths.ResultLog != "" {
		paths = append(paths, filepath.Dir(c.Paths.ResultLog))
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
