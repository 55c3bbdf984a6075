// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for Aleph.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations under ALEPH_HOME.
	Paths PathsConfig `yaml:"paths"`

	// Agent configures spawn and lifecycle defaults.
	Agent AgentConfig `yaml:"agent"`

	// Channel configures the broadcast channel registry.
	Channel ChannelConfig `yaml:"channel"`

	// LogFormat selects the slog handler every component constructs its
	// logger with: "text" (default, human-readable) or "json" (used by
	// detached/spawned agents so their logs merge into structured
	// aggregation). Set only from ALEPH_LOG_FORMAT, never from the YAML
	// file, since it describes how THIS process should log, not a
	// property of the fabric it's joining.
	LogFormat string `yaml:"-"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths   *PathsConfig   `yaml:"paths,omitempty"`
	Agent   *AgentConfig   `yaml:"agent,omitempty"`
	Channel *ChannelConfig `yaml:"channel,omitempty"`
}

// PathsConfig configures directory locations under the Aleph home.
type PathsConfig struct {
	// Home is the root directory for all Aleph state (default ~/.aleph).
	Home string `yaml:"home"`

	// Inbox is where per-agent inbox directories live.
	Inbox string `yaml:"inbox"`

	// Channels is where broadcast channel logs live.
	Channels string `yaml:"channels"`

	// Registry is where agent registry rows and heartbeat files live.
	Registry string `yaml:"registry"`

	// Tasks is where the task board YAML file lives.
	Tasks string `yaml:"tasks"`

	// Sessions is where session logs and archived transcripts live.
	Sessions string `yaml:"sessions"`

	// Quarantine is where malformed protocol artifacts are moved for inspection.
	Quarantine string `yaml:"quarantine"`

	// Locks is where advisory lock files live, separate from the data they guard.
	Locks string `yaml:"locks"`
}

// AgentConfig configures agent spawn and lifecycle defaults.
type AgentConfig struct {
	// PermissionMode is the default permission mode for newly spawned agents.
	// Values: "safe", "default", "yolo".
	// Default: default (development), default (production).
	PermissionMode string `yaml:"permission_mode"`

	// MaxDepth is the maximum spawn depth an agent may delegate to.
	// Default: 3
	MaxDepth int `yaml:"max_depth"`

	// HeartbeatInterval is how often a live agent touches its heartbeat file.
	// Default: 30s
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// LockTimeout bounds how long a caller waits to acquire an exclusive
	// file lock before returning LockContended.
	// Default: 5s
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// StaleAfter is how long since the last heartbeat before the registry
	// treats a row as stale and eligible for garbage collection.
	// Default: 90s
	StaleAfter time.Duration `yaml:"stale_after"`

	// TmuxSocket is the path to the dedicated tmux server socket used for
	// spawning interactive agent sessions.
	TmuxSocket string `yaml:"tmux_socket"`
}

// ChannelConfig configures the broadcast channel registry.
type ChannelConfig struct {
	// HistoryLimit is the maximum number of messages retained per channel
	// in history.jsonl before the oldest entries are pruned.
	// Default: 500
	HistoryLimit int `yaml:"history_limit"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file, so
// that every field has a sensible value. cmd/aleph's launch path also
// uses them on their own when ALEPH_CONFIG is unset.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultHome := filepath.Join(homeDir, ".aleph")

	return &Config{
		Environment: Development,
		LogFormat:   "text",
		Paths: PathsConfig{
			Home:       defaultHome,
			Inbox:      filepath.Join(defaultHome, "inbox"),
			Channels:   filepath.Join(defaultHome, "channels"),
			Registry:   filepath.Join(defaultHome, "registry"),
			Tasks:      filepath.Join(defaultHome, "tasks"),
			Sessions:   filepath.Join(defaultHome, "memory", "sessions"),
			Quarantine: filepath.Join(defaultHome, "quarantine"),
			Locks:      filepath.Join(defaultHome, "locks"),
		},
		Agent: AgentConfig{
			PermissionMode:    "default",
			MaxDepth:          3,
			HeartbeatInterval: 30 * time.Second,
			LockTimeout:       5 * time.Second,
			StaleAfter:        90 * time.Second,
			TmuxSocket:        filepath.Join(defaultHome, "tmux.sock"),
		},
		Channel: ChannelConfig{
			HistoryLimit: 500,
		},
	}
}

// Load loads configuration from the ALEPH_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if ALEPH_CONFIG is not set, this fails.
// This ensures deterministic, auditable configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("ALEPH_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("ALEPH_CONFIG environment variable not set; " +
			"set it to the path of your aleph.yaml config file")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the source of truth for everything it declares.
// After the file, environment-scoped overrides (development/staging/
// production blocks) apply, then a small, fixed set of environment
// variables layer on top: ALEPH_HOME re-roots the home directory (and
// every path field still pointing under the old root), and
// ALEPH_LOG_FORMAT selects the logging handler. These are process
// launch parameters, not fabric configuration, which is why they come
// from the environment rather than the file — a spawned subagent
// inherits its parent's config file but still needs its own home
// override and log format.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	env, err := LoadEnvOverrides()
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(env)

	return cfg, nil
}

// EnvOverrides is the fixed set of environment variables that layer on
// top of file-based configuration, decoded via
// `kelseyhightower/envconfig` rather than ad hoc `os.Getenv` calls so
// every field's name, default, and required-ness is declared in one
// place.
type EnvOverrides struct {
	// Home re-roots ALEPH_HOME after the config file has already been
	// loaded and expanded.
	Home string `envconfig:"ALEPH_HOME"`

	// AgentID identifies which agent's process this is. Not a Config
	// field itself (it varies per spawned process, not per fabric), but
	// loaded alongside the other two since all three are read from the
	// same process environment by the same mechanism.
	AgentID string `envconfig:"ALEPH_AGENT_ID"`

	// LogFormat selects "text" or "json" logging. Empty means "leave
	// whatever LoadFile/Default already set."
	LogFormat string `envconfig:"ALEPH_LOG_FORMAT"`
}

// LoadEnvOverrides reads EnvOverrides from the process environment.
func LoadEnvOverrides() (EnvOverrides, error) {
	var env EnvOverrides
	if err := envconfig.Process("aleph", &env); err != nil {
		return EnvOverrides{}, fmt.Errorf("config: reading environment overrides: %w", err)
	}
	return env, nil
}

// ApplyEnv layers env onto c. A non-empty Home rewrites every path
// field that was still pointing under the old home root, the same way
// --home does for the launch binary; a non-empty LogFormat replaces
// c.LogFormat outright. AgentID is not applied to c — callers read
// env.AgentID directly, since it has no corresponding Config field.
func (c *Config) ApplyEnv(env EnvOverrides) {
	if env.LogFormat != "" {
		c.LogFormat = env.LogFormat
	}
	if env.Home == "" || env.Home == c.Paths.Home {
		return
	}

	oldHome := c.Paths.Home
	c.Paths.Home = env.Home

	rehome := func(p string) string {
		rel, err := filepath.Rel(oldHome, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			return p
		}
		return filepath.Join(env.Home, rel)
	}

	c.Paths.Inbox = rehome(c.Paths.Inbox)
	c.Paths.Channels = rehome(c.Paths.Channels)
	c.Paths.Registry = rehome(c.Paths.Registry)
	c.Paths.Tasks = rehome(c.Paths.Tasks)
	c.Paths.Sessions = rehome(c.Paths.Sessions)
	c.Paths.Quarantine = rehome(c.Paths.Quarantine)
	c.Paths.Locks = rehome(c.Paths.Locks)
	c.Agent.TmuxSocket = rehome(c.Agent.TmuxSocket)
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: stricter posture unless the file overrides it.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Agent: &AgentConfig{
					PermissionMode: "default",
				},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Home != "" {
			c.Paths.Home = overrides.Paths.Home
		}
		if overrides.Paths.Inbox != "" {
			c.Paths.Inbox = overrides.Paths.Inbox
		}
		if overrides.Paths.Channels != "" {
			c.Paths.Channels = overrides.Paths.Channels
		}
		if overrides.Paths.Registry != "" {
			c.Paths.Registry = overrides.Paths.Registry
		}
		if overrides.Paths.Tasks != "" {
			c.Paths.Tasks = overrides.Paths.Tasks
		}
		if overrides.Paths.Sessions != "" {
			c.Paths.Sessions = overrides.Paths.Sessions
		}
		if overrides.Paths.Quarantine != "" {
			c.Paths.Quarantine = overrides.Paths.Quarantine
		}
		if overrides.Paths.Locks != "" {
			c.Paths.Locks = overrides.Paths.Locks
		}
	}

	if overrides.Agent != nil {
		if overrides.Agent.PermissionMode != "" {
			c.Agent.PermissionMode = overrides.Agent.PermissionMode
		}
		if overrides.Agent.MaxDepth != 0 {
			c.Agent.MaxDepth = overrides.Agent.MaxDepth
		}
		if overrides.Agent.HeartbeatInterval != 0 {
			c.Agent.HeartbeatInterval = overrides.Agent.HeartbeatInterval
		}
		if overrides.Agent.LockTimeout != 0 {
			c.Agent.LockTimeout = overrides.Agent.LockTimeout
		}
		if overrides.Agent.StaleAfter != 0 {
			c.Agent.StaleAfter = overrides.Agent.StaleAfter
		}
		if overrides.Agent.TmuxSocket != "" {
			c.Agent.TmuxSocket = overrides.Agent.TmuxSocket
		}
	}

	if overrides.Channel != nil {
		if overrides.Channel.HistoryLimit != 0 {
			c.Channel.HistoryLimit = overrides.Channel.HistoryLimit
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"ALEPH_HOME": c.Paths.Home,
		"HOME":       os.Getenv("HOME"),
	}

	c.Paths.Home = expandVars(c.Paths.Home, vars)
	vars["ALEPH_HOME"] = c.Paths.Home // Update for dependent paths.

	c.Paths.Inbox = expandVars(c.Paths.Inbox, vars)
	c.Paths.Channels = expandVars(c.Paths.Channels, vars)
	c.Paths.Registry = expandVars(c.Paths.Registry, vars)
	c.Paths.Tasks = expandVars(c.Paths.Tasks, vars)
	c.Paths.Sessions = expandVars(c.Paths.Sessions, vars)
	c.Paths.Quarantine = expandVars(c.Paths.Quarantine, vars)
	c.Paths.Locks = expandVars(c.Paths.Locks, vars)
	c.Agent.TmuxSocket = expandVars(c.Agent.TmuxSocket, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var permissionModes = []string{"safe", "default", "yolo"}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Home == "" {
		errs = append(errs, fmt.Errorf("paths.home is required"))
	}

	if !contains(permissionModes, c.Agent.PermissionMode) {
		errs = append(errs, fmt.Errorf("agent.permission_mode must be one of: %v", permissionModes))
	}

	if c.Agent.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("agent.max_depth must be >= 1"))
	}

	if c.Agent.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("agent.heartbeat_interval must be positive"))
	}

	if c.Agent.LockTimeout <= 0 {
		errs = append(errs, fmt.Errorf("agent.lock_timeout must be positive"))
	}

	if c.Channel.HistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("channel.history_limit must be >= 1"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// NewLogger constructs the *slog.Logger every component builds its
// own logger from: JSON for format == "json" (spawned/detached agents,
// so their logs merge into structured aggregation), text otherwise.
// Any other value falls back to text rather than failing, since a
// logging misconfiguration should never be what stops an agent from
// starting.
func NewLogger(format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Home,
		c.Paths.Inbox,
		c.Paths.Channels,
		c.Paths.Registry,
		c.Paths.Tasks,
		c.Paths.Sessions,
		c.Paths.Quarantine,
		c.Paths.Locks,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
