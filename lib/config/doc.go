// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for Aleph components.
//
// Configuration is loaded from a single file: [Load] takes its path
// from the ALEPH_CONFIG environment variable and fails when that is
// unset; [LoadFile] takes the path directly. There is no ~/.config
// discovery and no automatic file search.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production defaults are stricter:
// the permission mode defaults to "default" rather than "yolo".
//
// Variable expansion is performed on path fields after loading: ${HOME},
// ${ALEPH_HOME}, and ${VAR:-default} patterns are expanded. After that,
// [LoadFile] layers two environment variables on top of the file:
// ALEPH_HOME re-roots the home directory and ALEPH_LOG_FORMAT selects
// the log format (see [EnvOverrides]). No other environment variables
// override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Agent, Channel
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other Aleph packages.
package config
