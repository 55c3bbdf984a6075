// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// preToolUseMatcher lists the tool names an edit or bash call might
// use; the arbiter itself decides whether a given call needs a human,
// so the hook fires on every call and defers to the socket round trip
// rather than trying to duplicate the classification here.
const preToolUseMatcher = "Bash|Edit|Write|NotebookEdit|MultiEdit|WebFetch|WebSearch"

// claudeCodeSettings returns the settings.local.json contents that
// route Claude Code's PreToolUse/PostToolUse hooks to this binary's
// own "hooks" subcommand, which forwards to the harness's hookrpc
// socket rather than deciding anything locally.
func claudeCodeSettings(binaryPath string) map[string]any {
	return map[string]any{
		"hooks": map[string]any{
			"PreToolUse": []map[string]any{
				{
					"matcher": preToolUseMatcher,
					"hooks": []map[string]any{
						{"type": "command", "command": binaryPath + " hooks pre-tool-use"},
					},
				},
			},
			"PostToolUse": []map[string]any{
				{
					"hooks": []map[string]any{
						{"type": "command", "command": binaryPath + " hooks post-tool-use", "timeout": 10},
					},
				},
			},
		},
	}
}

// writeClaudeCodeSettings writes .claude/settings.local.json under
// workingDirectory, overwriting whatever was there before. Aleph owns
// this file for the lifetime of the session; a project's own
// .claude/settings.json (not .local.json) is left untouched.
func writeClaudeCodeSettings(workingDirectory, binaryPath string) error {
	dir := filepath.Join(workingDirectory, ".claude")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(claudeCodeSettings(binaryPath), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	path := filepath.Join(dir, "settings.local.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
