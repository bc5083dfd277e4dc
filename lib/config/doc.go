// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the build
// agent.
//
// Configuration is loaded from a single file specified by either the
// BUILDAGENT_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks and no automatic file
// search.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Without a production section,
// production disables console colors. Map-valued build settings
// (variables, env) merge key by key.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${BUILDAGENT_ROOT}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Build, Artifacts, Secrets, Console
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other agent packages.
package config
