// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package claudecode

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/aleph-agents/aleph/lib/agentdriver"
)

// Driver implements agentdriver.Driver for Claude Code.
type Driver struct {
	// BinaryPath is the path to the claude binary. Defaults to
	// "claude" (resolved via PATH) when empty.
	BinaryPath string
}

// process wraps an exec.Cmd to implement agentdriver.Process.
type process struct {
	command *exec.Cmd
	stdin   io.WriteCloser
}

func (p *process) Wait() error {
	return p.command.Wait()
}

func (p *process) Stdin() io.Writer {
	return p.stdin
}

func (p *process) Signal(signal os.Signal) error {
	if p.command.Process == nil {
		return fmt.Errorf("claudecode: process not started")
	}
	return p.command.Process.Signal(signal)
}

// Start spawns a Claude Code process in print mode with stream-json
// output, one line of structured JSON per model/tool event on stdout.
func (d *Driver) Start(ctx context.Context, config agentdriver.DriverConfig) (agentdriver.Process, io.ReadCloser, error) {
	binaryPath := d.BinaryPath
	if binaryPath == "" {
		binaryPath = "claude"
	}

	arguments := []string{
		"--output-format", "stream-json",
		"--print",
		"--verbose",
	}
	if config.SystemPromptFile != "" {
		arguments = append(arguments, "--append-system-prompt-file", config.SystemPromptFile)
	}
	arguments = append(arguments, config.Prompt)

	command := exec.CommandContext(ctx, binaryPath, arguments...)
	command.Dir = config.WorkingDirectory
	command.Stderr = os.Stderr
	command.Env = append(os.Environ(), config.ExtraEnv...)

	stdin, err := command.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("claudecode: creating stdin pipe: %w", err)
	}

	stdout, err := command.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, nil, fmt.Errorf("claudecode: creating stdout pipe: %w", err)
	}

	if err := command.Start(); err != nil {
		stdin.Close()
		return nil, nil, fmt.Errorf("claudecode: starting claude: %w", err)
	}

	return &process{command: command, stdin: stdin}, stdout, nil
}

// ParseOutput reads Claude Code's stream-json stdout line by line and
// emits structured events.
func (d *Driver) ParseOutput(ctx context.Context, stdout io.Reader, events chan<- agentdriver.Event) error {
	scanner := bufio.NewScanner(stdout)
	// Tool results (e.g. file reads) can produce very long lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		event, err := parseStreamJSONLine(line)
		if err != nil {
			events <- agentdriver.Event{
				Timestamp: time.Now(),
				Type:      agentdriver.EventTypeOutput,
				Output:    &agentdriver.OutputEvent{Raw: json.RawMessage(append([]byte(nil), line...))},
			}
			continue
		}

		events <- event
	}

	return scanner.Err()
}

// Interrupt sends SIGINT, which Claude Code treats as a request to
// finish the current tool call and exit gracefully rather than an
// immediate kill.
func (d *Driver) Interrupt(p agentdriver.Process) error {
	return p.Signal(syscall.SIGINT)
}

type streamJSONEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
}

func parseStreamJSONLine(line []byte) (agentdriver.Event, error) {
	var envelope streamJSONEvent
	if err := json.Unmarshal(line, &envelope); err != nil {
		return agentdriver.Event{}, fmt.Errorf("claudecode: parsing stream-json envelope: %w", err)
	}

	now := time.Now()

	switch envelope.Type {
	case "system":
		return agentdriver.Event{
			Timestamp: now,
			Type:      agentdriver.EventTypeSystem,
			System: &agentdriver.SystemEvent{
				Subtype:  envelope.Subtype,
				Message:  extractStringField(line, "message"),
				Metadata: json.RawMessage(append([]byte(nil), line...)),
			},
		}, nil

	case "assistant":
		return parseAssistantEvent(now, envelope.Subtype, line), nil

	case "tool":
		return parseToolEvent(now, envelope.Subtype, line), nil

	case "result":
		return parseResultEvent(now, line), nil

	default:
		return agentdriver.Event{
			Timestamp: now,
			Type:      agentdriver.EventTypeOutput,
			Output:    &agentdriver.OutputEvent{Raw: json.RawMessage(append([]byte(nil), line...))},
		}, nil
	}
}

func parseAssistantEvent(timestamp time.Time, subtype string, line []byte) agentdriver.Event {
	switch subtype {
	case "text":
		return agentdriver.Event{
			Timestamp: timestamp,
			Type:      agentdriver.EventTypeResponse,
			Response:  &agentdriver.ResponseEvent{Content: extractStringField(line, "text")},
		}

	case "tool_use":
		var toolUse struct {
			ID    string          `json:"tool_use_id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		}
		json.Unmarshal(line, &toolUse)
		return agentdriver.Event{
			Timestamp: timestamp,
			Type:      agentdriver.EventTypeToolCall,
			ToolCall: &agentdriver.ToolCallEvent{
				ID:    toolUse.ID,
				Name:  toolUse.Name,
				Input: toolUse.Input,
			},
		}

	default:
		return agentdriver.Event{
			Timestamp: timestamp,
			Type:      agentdriver.EventTypeOutput,
			Output:    &agentdriver.OutputEvent{Raw: json.RawMessage(append([]byte(nil), line...))},
		}
	}
}

func parseToolEvent(timestamp time.Time, subtype string, line []byte) agentdriver.Event {
	switch subtype {
	case "result":
		var toolResult struct {
			ToolUseID string `json:"tool_use_id"`
			IsError   bool   `json:"is_error"`
			Content   string `json:"content"`
		}
		json.Unmarshal(line, &toolResult)
		return agentdriver.Event{
			Timestamp: timestamp,
			Type:      agentdriver.EventTypeToolResult,
			ToolResult: &agentdriver.ToolResultEvent{
				ID:      toolResult.ToolUseID,
				IsError: toolResult.IsError,
				Output:  toolResult.Content,
			},
		}

	default:
		return agentdriver.Event{
			Timestamp: timestamp,
			Type:      agentdriver.EventTypeOutput,
			Output:    &agentdriver.OutputEvent{Raw: json.RawMessage(append([]byte(nil), line...))},
		}
	}
}

func parseResultEvent(timestamp time.Time, line []byte) agentdriver.Event {
	var result struct {
		Subtype          string  `json:"subtype"`
		CostUSD          float64 `json:"cost_usd"`
		InputTokens      int64   `json:"input_tokens"`
		OutputTokens     int64   `json:"output_tokens"`
		CacheReadTokens  int64   `json:"cache_read_input_tokens"`
		CacheWriteTokens int64   `json:"cache_creation_input_tokens"`
		DurationMS       float64 `json:"duration_ms"`
		TurnCount        int64   `json:"num_turns"`
	}
	json.Unmarshal(line, &result)

	return agentdriver.Event{
		Timestamp: timestamp,
		Type:      agentdriver.EventTypeMetric,
		Metric: &agentdriver.MetricEvent{
			InputTokens:      result.InputTokens,
			OutputTokens:     result.OutputTokens,
			CacheReadTokens:  result.CacheReadTokens,
			CacheWriteTokens: result.CacheWriteTokens,
			CostUSD:          result.CostUSD,
			DurationSeconds:  result.DurationMS / 1000.0,
			TurnCount:        result.TurnCount,
			Status:           result.Subtype,
		},
	}
}

func extractStringField(data []byte, field string) string {
	var parsed map[string]json.RawMessage
	if json.Unmarshal(data, &parsed) != nil {
		return ""
	}
	raw, ok := parsed[field]
	if !ok {
		return ""
	}
	var value string
	if json.Unmarshal(raw, &value) != nil {
		return ""
	}
	return value
}
