// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package hookrpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/aleph-agents/aleph/lib/codec"
)

// dialTimeout bounds how long the client waits to connect. The
// harness process is expected to already be listening by the time
// the runtime's own hook subprocess fires.
const dialTimeout = 5 * time.Second

// Client dials a running Server's socket, one connection per call.
type Client struct {
	socketPath string
}

// NewClient returns a Client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// PreToolUse asks the arbiter whether a tool call may proceed,
// blocking until a decision is reached (including any interactive
// prompt the harness surfaces to a human).
func (c *Client) PreToolUse(ctx context.Context, req PreToolUseRequest) (PreToolUseResponse, error) {
	request := map[string]any{
		"action":    "pre_tool_use",
		"agent_id":  req.AgentID,
		"tool_name": req.ToolName,
		"arguments": req.Arguments,
	}
	var response PreToolUseResponse
	if err := c.call(ctx, request, &response); err != nil {
		return PreToolUseResponse{}, err
	}
	return response, nil
}

// PostToolUse fetches any additionalContext the runtime should fold
// into its next turn following a completed tool call.
func (c *Client) PostToolUse(ctx context.Context, req PostToolUseRequest) (PostToolUseResponse, error) {
	request := map[string]any{
		"action":    "post_tool_use",
		"agent_id":  req.AgentID,
		"tool_name": req.ToolName,
		"arguments": req.Arguments,
	}
	var response PostToolUseResponse
	if err := c.call(ctx, request, &response); err != nil {
		return PostToolUseResponse{}, err
	}
	return response, nil
}

type wireResponse struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

func (c *Client) call(ctx context.Context, request any, result any) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("hookrpc: connecting to %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return fmt.Errorf("hookrpc: writing request: %w", err)
	}

	var response wireResponse
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		return fmt.Errorf("hookrpc: reading response: %w", err)
	}
	if !response.OK {
		return fmt.Errorf("hookrpc: %s", response.Error)
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("hookrpc: decoding response: %w", err)
		}
	}
	return nil
}
