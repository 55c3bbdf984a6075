// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package claudecode

import (
	"context"
	"strings"
	"testing"

	"github.com/aleph-agents/aleph/lib/agentdriver"
)

const sampleStreamJSON = `{"type":"system","subtype":"init","session_id":"abc123","tools":["Read","Edit","Bash"],"message":"Claude Code starting"}
{"type":"assistant","subtype":"text","text":"I'll read the file first."}
{"type":"assistant","subtype":"tool_use","tool_use_id":"tu-1","name":"Read","input":{"file_path":"/tmp/test.go"}}
{"type":"tool","subtype":"result","tool_use_id":"tu-1","content":"package main\n\nfunc main() {}","is_error":false}
{"type":"assistant","subtype":"text","text":"The file looks good."}
{"type":"result","subtype":"success","cost_usd":0.015,"input_tokens":2500,"output_tokens":800,"cache_read_input_tokens":500,"num_turns":3,"duration_ms":4500}
`

func collectEvents(t *testing.T, reader *strings.Reader) []agentdriver.Event {
	t.Helper()
	driver := &Driver{}
	events := make(chan agentdriver.Event, 64)

	if err := driver.ParseOutput(context.Background(), reader, events); err != nil {
		t.Fatalf("ParseOutput: %v", err)
	}
	close(events)

	var collected []agentdriver.Event
	for event := range events {
		collected = append(collected, event)
	}
	return collected
}

func TestParseOutput_EventTypes(t *testing.T) {
	collected := collectEvents(t, strings.NewReader(sampleStreamJSON))

	if len(collected) != 6 {
		t.Fatalf("got %d events, want 6", len(collected))
	}

	if collected[0].Type != agentdriver.EventTypeSystem || collected[0].System.Subtype != "init" {
		t.Errorf("event[0] = %+v, want system/init", collected[0])
	}
	if collected[1].Type != agentdriver.EventTypeResponse || collected[1].Response.Content != "I'll read the file first." {
		t.Errorf("event[1] = %+v, want response text", collected[1])
	}
	if collected[2].Type != agentdriver.EventTypeToolCall || collected[2].ToolCall.Name != "Read" {
		t.Errorf("event[2] = %+v, want tool_call Read", collected[2])
	}
	if collected[3].Type != agentdriver.EventTypeToolResult || collected[3].ToolResult.IsError {
		t.Errorf("event[3] = %+v, want successful tool_result", collected[3])
	}
	if !strings.Contains(collected[3].ToolResult.Output, "package main") {
		t.Errorf("event[3].ToolResult.Output = %q, want to contain package main", collected[3].ToolResult.Output)
	}
	if collected[5].Type != agentdriver.EventTypeMetric {
		t.Fatalf("event[5].Type = %q, want metric", collected[5].Type)
	}
	metric := collected[5].Metric
	if metric.InputTokens != 2500 || metric.OutputTokens != 800 || metric.CacheReadTokens != 500 || metric.TurnCount != 3 {
		t.Errorf("metric = %+v, unexpected values", metric)
	}
	if metric.DurationSeconds < 4.4 || metric.DurationSeconds > 4.6 {
		t.Errorf("DurationSeconds = %f, want ~4.5", metric.DurationSeconds)
	}
}

func TestParseOutput_MalformedLineBecomesOutputEvent(t *testing.T) {
	collected := collectEvents(t, strings.NewReader("not valid json\n{\"type\":\"system\",\"subtype\":\"init\"}\n"))

	if len(collected) != 2 {
		t.Fatalf("got %d events, want 2", len(collected))
	}
	if collected[0].Type != agentdriver.EventTypeOutput {
		t.Errorf("malformed line should produce output event, got %q", collected[0].Type)
	}
	if collected[1].Type != agentdriver.EventTypeSystem {
		t.Errorf("valid line should still parse, got %q", collected[1].Type)
	}
}

func TestParseOutput_UnknownTypePreservesRawJSON(t *testing.T) {
	collected := collectEvents(t, strings.NewReader(`{"type":"future_event","data":"something new"}`+"\n"))

	if len(collected) != 1 {
		t.Fatalf("got %d events, want 1", len(collected))
	}
	if collected[0].Type != agentdriver.EventTypeOutput {
		t.Errorf("unknown type should produce output event, got %q", collected[0].Type)
	}
	if !strings.Contains(string(collected[0].Output.Raw), "future_event") {
		t.Errorf("raw output should contain original JSON, got %s", collected[0].Output.Raw)
	}
}

func TestParseOutput_SkipsEmptyLines(t *testing.T) {
	collected := collectEvents(t, strings.NewReader("\n\n{\"type\":\"system\",\"subtype\":\"init\"}\n\n"))

	if len(collected) != 1 {
		t.Fatalf("got %d events, want 1 (empty lines skipped)", len(collected))
	}
}

func TestParseOutput_ToolErrorPreserved(t *testing.T) {
	collected := collectEvents(t, strings.NewReader(`{"type":"tool","subtype":"result","tool_use_id":"tu-2","content":"permission denied","is_error":true}`+"\n"))

	if len(collected) != 1 {
		t.Fatalf("got %d events, want 1", len(collected))
	}
	if !collected[0].ToolResult.IsError {
		t.Error("expected IsError=true")
	}
	if collected[0].ToolResult.Output != "permission denied" {
		t.Errorf("Output = %q, want 'permission denied'", collected[0].ToolResult.Output)
	}
}

func TestExtractStringField(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		field    string
		expected string
	}{
		{"existing field", `{"message":"hello"}`, "message", "hello"},
		{"missing field", `{"other":"value"}`, "message", ""},
		{"non-string field", `{"count":42}`, "count", ""},
		{"invalid json", `not json`, "message", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractStringField([]byte(tt.data), tt.field)
			if result != tt.expected {
				t.Errorf("extractStringField(%q, %q) = %q, want %q", tt.data, tt.field, result, tt.expected)
			}
		})
	}
}
