// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aleph-agents/aleph/lib/config"
	"github.com/aleph-agents/aleph/lib/hookrpc"
)

// hookRequestTimeout bounds the post-tool-use round trip. Pre-tool-use
// requests carry no deadline, since a human may take arbitrarily long
// to answer a permission prompt.
const hookRequestTimeout = 30 * time.Second

// hookEvent is the JSON envelope Claude Code writes to a hook
// subprocess's stdin. Only the fields Aleph's hooks care about are
// declared; the runtime may include others.
type hookEvent struct {
	SessionID     string          `json:"session_id"`
	CWD           string          `json:"cwd"`
	HookEventName string          `json:"hook_event_name"`
	ToolName      string          `json:"tool_name"`
	ToolInput     json.RawMessage `json:"tool_input"`
	ToolResponse  json.RawMessage `json:"tool_response"`
}

// hookOutput is the JSON Aleph's hook subprocess writes to stdout,
// matching the shape Claude Code expects for hookSpecificOutput and
// (for PreToolUse) permissionDecision.
type hookOutput struct {
	HookSpecificOutput *hookSpecificOutput `json:"hookSpecificOutput,omitempty"`
	PermissionDecision string              `json:"permissionDecision,omitempty"`
	Reason             string              `json:"reason,omitempty"`
}

type hookSpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// runHooks is the entry point for "aleph hooks <event>", invoked by
// Claude Code itself as a PreToolUse/PostToolUse hook subprocess. It
// holds no state of its own: every decision is forwarded to the
// long-lived harness process over the hookrpc socket named by
// ALEPH_HOOK_SOCKET.
func runHooks(args []string) error {
	if len(args) == 0 {
		return userError("hooks: missing event name (pre-tool-use or post-tool-use)")
	}

	socketPath := os.Getenv("ALEPH_HOOK_SOCKET")
	if socketPath == "" {
		// No hookrpc server is running for this session (HookSocketPath
		// was left empty) — nothing to enforce or fetch. Allow silently.
		return writeHookOutput(hookOutput{})
	}
	env, err := config.LoadEnvOverrides()
	if err != nil {
		return internalError(fmt.Errorf("hooks: reading environment: %w", err))
	}
	if env.AgentID == "" {
		return internalError(fmt.Errorf("hooks: ALEPH_AGENT_ID not set"))
	}
	agentID := env.AgentID

	event, err := readHookEvent(os.Stdin)
	if err != nil {
		return internalError(fmt.Errorf("hooks: reading event: %w", err))
	}

	client := hookrpc.NewClient(socketPath)

	switch args[0] {
	case "pre-tool-use":
		return runPreToolUseHook(client, agentID, event)
	case "post-tool-use":
		return runPostToolUseHook(client, agentID, event)
	default:
		return userError("hooks: unknown event %q", args[0])
	}
}

func readHookEvent(r io.Reader) (hookEvent, error) {
	var event hookEvent
	data, err := io.ReadAll(r)
	if err != nil {
		return hookEvent{}, err
	}
	if len(data) == 0 {
		return hookEvent{}, nil
	}
	if err := json.Unmarshal(data, &event); err != nil {
		return hookEvent{}, err
	}
	return event, nil
}

func runPreToolUseHook(client *hookrpc.Client, agentID string, event hookEvent) error {
	// No deadline here on purpose: a call requiring approval blocks on
	// a human decision, which hookrpc's client leaves unbounded when
	// the caller's context has no deadline of its own.
	response, err := client.PreToolUse(context.Background(), hookrpc.PreToolUseRequest{
		AgentID:   agentID,
		ToolName:  event.ToolName,
		Arguments: string(event.ToolInput),
	})
	if err != nil {
		return internalError(fmt.Errorf("hooks: pre-tool-use round trip: %w", err))
	}

	return writeHookOutput(hookOutput{
		PermissionDecision: string(response.Decision),
		Reason:             response.Reason,
	})
}

func runPostToolUseHook(client *hookrpc.Client, agentID string, event hookEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), hookRequestTimeout)
	defer cancel()

	response, err := client.PostToolUse(ctx, hookrpc.PostToolUseRequest{
		AgentID:   agentID,
		ToolName:  event.ToolName,
		Arguments: string(event.ToolInput),
	})
	if err != nil {
		return internalError(fmt.Errorf("hooks: post-tool-use round trip: %w", err))
	}
	if response.AdditionalContext == "" {
		return writeHookOutput(hookOutput{})
	}

	return writeHookOutput(hookOutput{
		HookSpecificOutput: &hookSpecificOutput{
			HookEventName:     "PostToolUse",
			AdditionalContext: response.AdditionalContext,
		},
	})
}

func writeHookOutput(output hookOutput) error {
	encoder := json.NewEncoder(os.Stdout)
	if err := encoder.Encode(output); err != nil {
		return internalError(fmt.Errorf("hooks: encoding output: %w", err))
	}
	return nil
}
