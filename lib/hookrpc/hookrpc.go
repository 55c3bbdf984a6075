// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package hookrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/aleph-agents/aleph/lib/codec"
	"github.com/aleph-agents/aleph/lib/config"
	"github.com/aleph-agents/aleph/lib/dispatch"
	"github.com/aleph-agents/aleph/lib/hook"
	"github.com/aleph-agents/aleph/lib/permission"
)

// readTimeout bounds how long the server waits for a client to send
// its request after connecting.
const readTimeout = 30 * time.Second

// writeTimeout bounds how long the server waits to write a response.
const writeTimeout = 10 * time.Second

// maxRequestSize caps a single CBOR request; hook payloads (a tool's
// JSON input) are small compared to this.
const maxRequestSize = 1 << 20

// PreToolUseRequest is sent by the hook subprocess before the runtime
// executes a tool.
type PreToolUseRequest struct {
	AgentID   string `cbor:"agent_id"`
	ToolName  string `cbor:"tool_name"`
	Arguments string `cbor:"arguments"`
}

// PreToolUseResponse carries the arbiter's decision.
type PreToolUseResponse struct {
	Decision permission.Resolution `cbor:"decision"`
	Reason   string                `cbor:"reason,omitempty"`
}

// PostToolUseRequest is sent by the hook subprocess after the runtime
// executes a tool. ToolName and Arguments are used only for
// read-tracking (marking an inbox message read when the agent's own
// Read tool targets its file directly); they're optional and a zero
// value simply skips that step.
type PostToolUseRequest struct {
	AgentID   string `cbor:"agent_id"`
	ToolName  string `cbor:"tool_name,omitempty"`
	Arguments string `cbor:"arguments,omitempty"`
}

// PostToolUseResponse carries any additional context the runtime
// should fold into its next turn.
type PostToolUseResponse struct {
	AdditionalContext string `cbor:"additional_context,omitempty"`
}

// PromptFunc is called synchronously when a PreToolUse call needs a
// human decision (the arbiter's mode requires approval for this tool
// class). It must call req.Resolve before returning, or the calling
// hook subprocess — and the runtime's tool call — blocks until it
// does. A nil PromptFunc leaves such requests pending forever, which
// is only appropriate when the configured mode never requires
// approval (e.g. permission.ModeYolo).
type PromptFunc func(agentID string, req *permission.Request)

// DiffFunc computes a unified diff for an edit-classified tool call,
// given its raw JSON arguments. Returns an empty diff, nil for tools
// where no diff applies or none could be computed.
type DiffFunc func(agentID, toolName, arguments string) (string, error)

// Server answers hookrpc requests from short-lived hook subprocesses
// on behalf of one running harness. It shares the harness's arbiter,
// dispatcher, and hook bus directly — no state is duplicated.
type Server struct {
	socketPath string
	arbiter    *permission.Arbiter
	dispatcher *dispatch.Dispatcher
	hooks      *hook.Bus
	prompt     PromptFunc
	diff       DiffFunc
	logger     *slog.Logger

	activeConnections sync.WaitGroup
}

// NewServer returns a Server bound to socketPath. prompt and diff may
// be nil (no interactive prompting / no diff computation).
func NewServer(socketPath string, arbiter *permission.Arbiter, dispatcher *dispatch.Dispatcher, hooks *hook.Bus, prompt PromptFunc, diff DiffFunc, logger *slog.Logger) *Server {
	if logger == nil {
		env, _ := config.LoadEnvOverrides()
		logger = config.NewLogger(env.LogFormat)
	}
	return &Server{socketPath: socketPath, arbiter: arbiter, dispatcher: dispatcher, hooks: hooks, prompt: prompt, diff: diff, logger: logger}
}

// Serve accepts connections until ctx is cancelled, then waits for
// in-flight requests to finish before returning. The socket file is
// removed on entry and on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("hookrpc: removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("hookrpc: listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("hookrpc server listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("hookrpc accept failed", "error", err)
			continue
		}
		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

type requestEnvelope struct {
	Action string `cbor:"action"`
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if !errors.Is(err, io.EOF) {
			s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		}
		return
	}

	var envelope requestEnvelope
	if err := codec.Unmarshal(raw, &envelope); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	switch envelope.Action {
	case "pre_tool_use":
		s.handlePreToolUse(ctx, conn, raw)
	case "post_tool_use":
		s.handlePostToolUse(ctx, conn, raw)
	default:
		s.writeError(conn, fmt.Sprintf("unknown action %q", envelope.Action))
	}
}

func (s *Server) handlePreToolUse(ctx context.Context, conn net.Conn, raw codec.RawMessage) {
	var req PreToolUseRequest
	if err := codec.Unmarshal(raw, &req); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid pre_tool_use request: %v", err))
		return
	}

	// Busy/idle bookkeeping is driven entirely off the harness's own
	// parsed event stream (see harness.handleEvent); this handler only
	// gates the call and reports the decision.
	diffFn := func() (string, error) {
		if s.diff == nil {
			return "", nil
		}
		return s.diff(req.AgentID, req.ToolName, req.Arguments)
	}

	resolution, reason, pending, err := s.arbiter.Evaluate(req.AgentID, req.ToolName, req.Arguments, diffFn)
	if err != nil {
		s.writeError(conn, fmt.Sprintf("evaluating permission: %v", err))
		return
	}

	if pending != nil {
		if s.prompt != nil {
			s.prompt(req.AgentID, pending)
		}
		resolution, reason = pending.Wait()
	}

	s.hooks.Dispatch(ctx, hook.Event{Kind: hook.PreToolUse, AgentID: req.AgentID, ToolName: req.ToolName, Arguments: json.RawMessage(req.Arguments)})

	s.writeSuccess(conn, PreToolUseResponse{Decision: resolution, Reason: reason})
}

func (s *Server) handlePostToolUse(ctx context.Context, conn net.Conn, raw codec.RawMessage) {
	var req PostToolUseRequest
	if err := codec.Unmarshal(raw, &req); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid post_tool_use request: %v", err))
		return
	}

	if req.ToolName == "Read" {
		if path := readToolFilePath(req.Arguments); path != "" {
			if err := s.dispatcher.MarkReadFromPath(req.AgentID, path); err != nil {
				s.logger.Warn("marking inbox message read", "agent_id", req.AgentID, "error", err)
			}
		}
	}

	additionalContext, err := s.dispatcher.PostToolUseContext(req.AgentID)
	if err != nil {
		s.writeError(conn, fmt.Sprintf("computing additional context: %v", err))
		return
	}

	s.hooks.Dispatch(ctx, hook.Event{Kind: hook.PostToolUse, AgentID: req.AgentID})

	s.writeSuccess(conn, PostToolUseResponse{AdditionalContext: additionalContext})
}

// readToolFilePath extracts the "file_path" field from a Read tool
// call's JSON arguments. Returns "" if arguments isn't a JSON object
// with that field.
func readToolFilePath(arguments string) string {
	if arguments == "" {
		return ""
	}
	var fields struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal([]byte(arguments), &fields); err != nil {
		return ""
	}
	return fields.FilePath
}

func (s *Server) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(struct {
		OK    bool   `cbor:"ok"`
		Error string `cbor:"error"`
	}{OK: false, Error: message}); err != nil {
		s.logger.Debug("hookrpc: failed to write error response", "error", err)
	}
}

func (s *Server) writeSuccess(conn net.Conn, data any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	payload, err := codec.Marshal(data)
	if err != nil {
		s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
		return
	}
	if err := codec.NewEncoder(conn).Encode(struct {
		OK   bool             `cbor:"ok"`
		Data codec.RawMessage `cbor:"data"`
	}{OK: true, Data: payload}); err != nil {
		s.logger.Debug("hookrpc: failed to write success response", "error", err)
	}
}
