// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Classification buckets a tool call by the kind of access it
// performs, which determines whether a mode requires approval.
type Classification string

const (
	ClassRead  Classification = "read"
	ClassEdit  Classification = "edit"
	ClassBash  Classification = "bash"
	ClassWeb   Classification = "web"
	ClassOther Classification = "other"
)

// Mode is the agent's current permission posture.
type Mode string

const (
	ModeSafe    Mode = "safe"
	ModeDefault Mode = "default"
	ModeYolo    Mode = "yolo"
)

// readTools, editTools, bashTools, and webTools name the tool
// identifiers the underlying runtime uses for each classification.
// Anything not listed here classifies as ClassOther.
var (
	readTools = map[string]bool{"Read": true, "Glob": true, "Grep": true, "LS": true}
	editTools = map[string]bool{"Edit": true, "Write": true, "NotebookEdit": true, "MultiEdit": true}
	bashTools = map[string]bool{"Bash": true, "BashOutput": true, "KillShell": true}
	webTools  = map[string]bool{"WebFetch": true, "WebSearch": true}
)

// Classify determines a tool call's classification by name.
func Classify(toolName string) Classification {
	switch {
	case readTools[toolName]:
		return ClassRead
	case editTools[toolName]:
		return ClassEdit
	case bashTools[toolName]:
		return ClassBash
	case webTools[toolName]:
		return ClassWeb
	default:
		return ClassOther
	}
}

// RequiresApproval reports whether the given mode requires a human
// decision before a call of this classification proceeds.
func RequiresApproval(mode Mode, class Classification) bool {
	switch mode {
	case ModeYolo:
		return false
	case ModeDefault:
		return class == ClassEdit || class == ClassWeb
	case ModeSafe:
		return class == ClassEdit || class == ClassBash || class == ClassWeb
	default:
		return class == ClassEdit || class == ClassWeb
	}
}

// bashCommand extracts the "command" field from a Bash tool call's
// JSON arguments. Returns "" if arguments isn't a JSON object with
// that field, which simply means no guardrail pattern can match.
func bashCommand(arguments string) string {
	var fields struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal([]byte(arguments), &fields); err != nil {
		return ""
	}
	return fields.Command
}

// Resolution is the outcome of a resolved PermissionRequest.
type Resolution string

const (
	ResolutionAllow Resolution = "allow"
	ResolutionDeny  Resolution = "deny"
)

// Request is a single pending PreToolUse decision. Created by the
// arbiter, displayed by the UI, resolved by a keypress or an
// interrupt.
type Request struct {
	ToolName       string
	Arguments      string
	Classification Classification
	Diff           string // populated for edit tools

	mu         sync.Mutex
	resolution Resolution
	reason     string
	resolved   chan struct{}
}

func newRequest(toolName, arguments string, class Classification, diff string) *Request {
	return &Request{
		ToolName:       toolName,
		Arguments:      arguments,
		Classification: class,
		Diff:           diff,
		resolved:       make(chan struct{}),
	}
}

// Resolve records the UI's decision and wakes anyone waiting on it.
// Only the first call takes effect; later calls are no-ops, matching
// the single-shot nature of the waiter signal.
func (r *Request) Resolve(resolution Resolution, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.resolved:
		return // already resolved
	default:
	}
	r.resolution = resolution
	r.reason = reason
	close(r.resolved)
}

// Wait blocks until the request is resolved and returns the
// resolution and reason.
func (r *Request) Wait() (Resolution, string) {
	<-r.resolved
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolution, r.reason
}

// Arbiter gates PreToolUse calls under a per-agent mode.
type Arbiter struct {
	mu    sync.Mutex
	modes map[string]Mode
	// pending holds the single outstanding request per agent, matching
	// the invariant that the hook bus never allows two concurrent
	// requests for the same agent.
	pending map[string]*Request
}

// New returns an Arbiter with no agents registered; SetMode must be
// called before Evaluate for a given agent, or ModeDefault is
// assumed.
func New() *Arbiter {
	return &Arbiter{
		modes:   make(map[string]Mode),
		pending: make(map[string]*Request),
	}
}

// SetMode sets the active permission mode for an agent.
func (a *Arbiter) SetMode(agentID string, mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.modes[agentID] = mode
}

func (a *Arbiter) modeFor(agentID string) Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	if mode, ok := a.modes[agentID]; ok {
		return mode
	}
	return ModeDefault
}

// Evaluate classifies a tool call. If the current mode allows it
// outright, it returns (ResolutionAllow, "", nil) with a nil request.
// Otherwise it constructs and registers a Request, returning it for
// the caller to publish to the UI and wait on.
//
// Bash calls are checked against the guardrail patterns before mode
// gating: a "block" match is denied outright regardless of mode, and
// a "confirm" match always raises a Request, even under ModeYolo,
// since these are the commands a mode's blanket trust should never
// cover.
func (a *Arbiter) Evaluate(agentID, toolName, arguments string, diffFn func() (string, error)) (Resolution, string, *Request, error) {
	class := Classify(toolName)

	if class == ClassBash {
		if tier, desc, ok := classifyDanger(bashCommand(arguments)); ok {
			if tier == dangerBlock {
				return ResolutionDeny, fmt.Sprintf("blocked by guardrail: %s; this command is never allowed", desc), nil, nil
			}

			diff := fmt.Sprintf("DANGEROUS: %s\n\n$ %s", desc, bashCommand(arguments))
			req := newRequest(toolName, arguments, class, diff)

			a.mu.Lock()
			a.pending[agentID] = req
			a.mu.Unlock()

			return "", "", req, nil
		}
	}

	mode := a.modeFor(agentID)

	if !RequiresApproval(mode, class) {
		return ResolutionAllow, "", nil, nil
	}

	var diff string
	if class == ClassEdit && diffFn != nil {
		computed, err := diffFn()
		if err != nil {
			return "", "", nil, fmt.Errorf("permission: computing diff: %w", err)
		}
		diff = computed
	}

	req := newRequest(toolName, arguments, class, diff)

	a.mu.Lock()
	a.pending[agentID] = req
	a.mu.Unlock()

	return "", "", req, nil
}

// Interrupt resolves an agent's pending request, if any, as deny with
// reason "interrupted".
func (a *Arbiter) Interrupt(agentID string) {
	a.mu.Lock()
	req := a.pending[agentID]
	a.mu.Unlock()
	if req != nil {
		req.Resolve(ResolutionDeny, "interrupted")
	}
}

// Clear removes the pending request for an agent once resolved,
// keeping the pending map from growing unbounded.
func (a *Arbiter) Clear(agentID string) {
	a.mu.Lock()
	delete(a.pending, agentID)
	a.mu.Unlock()
}

// UnifiedDiff computes a line-oriented unified diff between old and
// new content using diff-match-patch's line-hashing technique: lines
// are mapped to single characters, diffed as a character sequence for
// speed, then mapped back to full lines.
func UnifiedDiff(oldPath, newPath, oldContent, newContent string) string {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	charsOld, charsNew, lineArray := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffMain(charsOld, charsNew, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var buf strings.Builder
	fmt.Fprintf(&buf, "--- %s\n+++ %s\n", oldPath, newPath)
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			buf.WriteString(prefix)
			buf.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				buf.WriteString("\n")
			}
		}
	}
	return buf.String()
}
