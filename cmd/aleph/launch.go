// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/aleph-agents/aleph/internal/tui"
	"github.com/aleph-agents/aleph/lib/agentdriver/claudecode"
	"github.com/aleph-agents/aleph/lib/config"
	"github.com/aleph-agents/aleph/lib/dispatch"
	"github.com/aleph-agents/aleph/lib/harness"
	"github.com/aleph-agents/aleph/lib/hook"
	"github.com/aleph-agents/aleph/lib/inbox"
	"github.com/aleph-agents/aleph/lib/permission"
	"github.com/aleph-agents/aleph/lib/quarantine"
	"github.com/aleph-agents/aleph/lib/registry"
	"github.com/aleph-agents/aleph/lib/spawn"
	"github.com/aleph-agents/aleph/lib/tmux"
)

// disableRuntimeMemoryEnv turns off Claude Code's own built-in memory
// feature. Aleph owns memory continuity itself (memory/handoff.md,
// memory/context.md, memory/sessions/) via lib/session; letting the
// runtime's own memory tool run alongside it would create two
// competing, unsynchronized notions of what an agent remembers.
const disableRuntimeMemoryEnv = "CLAUDE_CODE_DISABLE_MEMORY_TOOL=1"

type launchFlags struct {
	id            string
	prompt        string
	project       string
	parent        string
	depth         int
	mode          string
	ephemeral     bool
	detach        bool
	home          string
	claudeBinary  string
	help          bool
}

func runLaunch(args []string) error {
	flagSet := pflag.NewFlagSet("aleph", pflag.ContinueOnError)
	flagSet.Usage = func() { printHelp(flagSet) }

	var flags launchFlags
	flagSet.StringVar(&flags.id, "id", "", "agent id (allocated if omitted)")
	flagSet.StringVar(&flags.prompt, "prompt", "", "initial prompt for the session")
	flagSet.StringVar(&flags.project, "project", "", "working directory for the session (default: current directory)")
	flagSet.StringVar(&flags.parent, "parent", "", "parent agent id, if this session was spawned by another agent")
	flagSet.IntVar(&flags.depth, "depth", 0, "spawn depth of this session")
	flagSet.StringVar(&flags.mode, "mode", "", "permission mode: safe, default, or yolo (default: agent.permission_mode from config)")
	flagSet.BoolVar(&flags.ephemeral, "ephemeral", false, "skip the end-of-session summary and memory continuity")
	flagSet.BoolVar(&flags.detach, "detach", false, "launch into a new tmux-hosted session instead of running inline")
	flagSet.StringVar(&flags.home, "home", "", "Aleph home directory (default: $ALEPH_HOME or ~/.aleph)")
	flagSet.StringVar(&flags.claudeBinary, "claude-binary", "", "path to the claude binary (default: $CLAUDE_BINARY or \"claude\")")
	flagSet.BoolVarP(&flags.help, "help", "h", false, "show this help message")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return userError("parsing flags: %v", err)
	}
	if flags.help {
		printHelp(flagSet)
		return nil
	}

	cfg, err := resolveConfig(flags.home)
	if err != nil {
		return userError("%v", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return internalError(fmt.Errorf("preparing %s: %w", cfg.Paths.Home, err))
	}

	if flags.project == "" {
		wd, err := os.Getwd()
		if err != nil {
			return internalError(fmt.Errorf("resolving working directory: %w", err))
		}
		flags.project = wd
	}
	mode := flags.mode
	if mode == "" {
		mode = cfg.Agent.PermissionMode
	}
	if mode != string(permission.ModeSafe) && mode != string(permission.ModeDefault) && mode != string(permission.ModeYolo) {
		return userError("invalid --mode %q: must be safe, default, or yolo", mode)
	}

	binaryPath, err := os.Executable()
	if err != nil {
		return internalError(fmt.Errorf("resolving own binary path: %w", err))
	}

	if key, value, ok := strings.Cut(disableRuntimeMemoryEnv, "="); ok {
		os.Setenv(key, value)
	}

	if flags.detach {
		return runDetached(cfg, binaryPath, flags, mode)
	}

	id := flags.id
	if id == "" {
		id = allocateAgentID()
	}

	logger := config.NewLogger(cfg.LogFormat)

	quarantineStore := quarantine.New(cfg.Paths.Quarantine)
	inboxStore := inbox.New(cfg.Paths.Inbox, quarantineStore)
	reg := registry.New(cfg.Paths.Registry, cfg.Agent.StaleAfter)
	injector := harness.NewInjector()
	dispatcher := dispatch.New(inboxStore, injector, cfg.Paths.Inbox)
	hooks := hook.New()
	arbiter := permission.New()

	h := harness.New(&claudecode.Driver{BinaryPath: claudeBinaryPath(flags.claudeBinary)}, reg, dispatcher, hooks, arbiter, injector, logger)

	prompter := tui.NewPermissionPrompter()
	h.SetPermissionPrompt(prompter.Prompt)
	h.SetDiffFunc(fileDiff)
	h.SetBannerFunc(func(message string) { tui.RenderBanner(os.Stderr, message) })

	if err := writeClaudeCodeSettings(flags.project, binaryPath); err != nil {
		return internalError(fmt.Errorf("writing Claude Code settings: %w", err))
	}

	runDir := filepath.Join(cfg.Paths.Home, "run")
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return internalError(fmt.Errorf("creating %s: %w", runDir, err))
	}
	hookSocketPath := filepath.Join(runDir, id+".sock")

	runConfig := harness.Config{
		AgentID:        id,
		ParentID:       flags.parent,
		Depth:          flags.depth,
		Project:        flags.project,
		Mode:           permission.Mode(mode),
		Ephemeral:      flags.ephemeral,
		Prompt:         flags.prompt,
		Home:           cfg.Paths.Home,
		HookSocketPath: hookSocketPath,
		HeartbeatInterval: cfg.Agent.HeartbeatInterval,
	}

	if err := h.Run(context.Background(), runConfig); err != nil {
		return internalError(err)
	}
	return nil
}

func runDetached(cfg *config.Config, binaryPath string, flags launchFlags, mode string) error {
	server := tmux.NewServer(cfg.Agent.TmuxSocket, "/dev/null")
	reg := registry.New(cfg.Paths.Registry, cfg.Agent.StaleAfter)
	spawner := spawn.New(server, reg, binaryPath, cfg.Agent.MaxDepth)

	id, err := spawner.Spawn(spawn.Request{
		ParentID:  flags.parent,
		ID:        flags.id,
		Prompt:    flags.prompt,
		Project:   flags.project,
		Mode:      mode,
		Ephemeral: flags.ephemeral,
		Depth:     flags.depth,
	})
	if err != nil {
		return internalError(fmt.Errorf("spawning detached session: %w", err))
	}

	fmt.Fprintf(os.Stdout, "%s\n", id)
	return nil
}

// resolveConfig loads the layered Aleph configuration. Unlike
// config.Load, which requires ALEPH_CONFIG and refuses to guess,
// aleph's own launch path is allowed a default: most sessions never
// touch a config file at all, so requiring one for every invocation
// of the harness binary would make the common case worse without
// making anything more auditable.
func resolveConfig(homeOverride string) (*config.Config, error) {
	if path := os.Getenv("ALEPH_CONFIG"); path != "" {
		return config.LoadFile(path)
	}

	cfg := config.Default()

	env, err := config.LoadEnvOverrides()
	if err != nil {
		return nil, err
	}
	if homeOverride != "" {
		env.Home = homeOverride
	}
	cfg.ApplyEnv(env)

	return cfg, nil
}

func claudeBinaryPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("CLAUDE_BINARY"); env != "" {
		return env
	}
	return "claude"
}

func allocateAgentID() string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the OS entropy source is broken;
		// fall back to a PID-derived id rather than crashing launch.
		return fmt.Sprintf("aleph-pid%d", os.Getpid())
	}
	return "aleph-" + hex.EncodeToString(buf[:])
}

// fileDiff computes a unified diff for edit-classified tool calls by
// reading the target file's current content off disk and comparing it
// against what the tool's arguments would write. Write replaces a file
// wholesale; Edit and MultiEdit apply a string substitution of the
// first occurrence. Anything else (NotebookEdit, or any other tool the
// arbiter classified as an edit) returns no diff rather than guessing.
func fileDiff(agentID, toolName, arguments string) (string, error) {
	var fields struct {
		FilePath  string `json:"file_path"`
		Content   string `json:"content"`
		OldString string `json:"old_string"`
		NewString string `json:"new_string"`
	}
	if err := json.Unmarshal([]byte(arguments), &fields); err != nil || fields.FilePath == "" {
		return "", nil
	}

	existing, err := os.ReadFile(fields.FilePath)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("reading %s: %w", fields.FilePath, err)
	}

	var newContent string
	switch toolName {
	case "Write":
		newContent = fields.Content
	case "Edit", "MultiEdit":
		newContent = strings.Replace(string(existing), fields.OldString, fields.NewString, 1)
	default:
		return "", nil
	}

	return permission.UnifiedDiff(fields.FilePath, fields.FilePath, string(existing), newContent), nil
}
