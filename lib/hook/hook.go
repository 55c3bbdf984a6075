// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package hook

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// EventKind names one of the four points in an agent's lifecycle
// where handlers can run.
type EventKind string

const (
	PreToolUse   EventKind = "PreToolUse"
	PostToolUse  EventKind = "PostToolUse"
	SessionStart EventKind = "SessionStart"
	Stop         EventKind = "Stop"
)

// PermissionDecision is a handler's verdict on whether a tool call
// should proceed. Defer means "no opinion" and is transparent to
// aggregation.
type PermissionDecision string

const (
	Allow PermissionDecision = "allow"
	Deny  PermissionDecision = "deny"
	Defer PermissionDecision = "defer"
)

// Event is the tagged variant dispatched to a chain of handlers.
// Fields not relevant to Kind are left zero.
type Event struct {
	Kind      EventKind
	AgentID   string
	ToolName  string
	Arguments json.RawMessage
	Result    json.RawMessage
}

// Decision is what one handler contributes to an event's outcome.
type Decision struct {
	AdditionalContext string
	Permission        PermissionDecision
	Message           string
}

// Handler observes or gates one event. Returning an error aborts only
// that handler's contribution; the chain continues with the next
// handler, since a broken mail-delivery handler should never wedge
// the permission arbiter's turn.
type Handler func(ctx context.Context, event Event) (Decision, error)

// Bus holds the ordered handler chain for each event kind and
// serializes dispatch per agent.
type Bus struct {
	mu       sync.Mutex
	handlers map[EventKind][]Handler
	agentMu  map[string]*sync.Mutex
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[EventKind][]Handler),
		agentMu:  make(map[string]*sync.Mutex),
	}
}

// Register appends a handler to the chain for the given event kind.
// Handlers run in registration order.
func (b *Bus) Register(kind EventKind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], handler)
}

func (b *Bus) lockFor(agentID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.agentMu[agentID]
	if !ok {
		m = &sync.Mutex{}
		b.agentMu[agentID] = m
	}
	return m
}

// Outcome is the aggregated result of running an event's handler
// chain: contexts concatenated in order, and the first non-defer
// permission decision.
type Outcome struct {
	AdditionalContext string
	Permission        PermissionDecision
	Message           string
}

// Dispatch runs the chain registered for event.Kind sequentially,
// serialized against any other dispatch for the same AgentID.
// Additional contexts are concatenated with a blank-line separator;
// the first allow or deny halts further permission evaluation, but
// remaining handlers still run for their side effects and context
// contribution.
func (b *Bus) Dispatch(ctx context.Context, event Event) Outcome {
	lock := b.lockFor(event.AgentID)
	lock.Lock()
	defer lock.Unlock()

	b.mu.Lock()
	chain := append([]Handler(nil), b.handlers[event.Kind]...)
	b.mu.Unlock()

	var contexts []string
	outcome := Outcome{Permission: Defer}
	permissionSet := false

	for _, handler := range chain {
		decision, err := handler(ctx, event)
		if err != nil {
			continue
		}
		if decision.AdditionalContext != "" {
			contexts = append(contexts, decision.AdditionalContext)
		}
		if !permissionSet && decision.Permission != "" && decision.Permission != Defer {
			outcome.Permission = decision.Permission
			outcome.Message = decision.Message
			permissionSet = true
		}
	}

	outcome.AdditionalContext = strings.Join(contexts, "\n\n")
	return outcome
}

// PostToolUseEnvelope is the JSON-compatible shape written back to
// the runtime after a PostToolUse dispatch: an empty object when no
// handler contributed context, or hookSpecificOutput populated
// otherwise.
type PostToolUseEnvelope struct {
	HookSpecificOutput *HookSpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// HookSpecificOutput carries the event name and any additional
// context a PostToolUse (or PreToolUse) dispatch produced.
type HookSpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// Envelope renders an Outcome as the wire-format the runtime expects
// for the given event kind.
func Envelope(kind EventKind, outcome Outcome) PostToolUseEnvelope {
	if outcome.AdditionalContext == "" {
		return PostToolUseEnvelope{}
	}
	return PostToolUseEnvelope{
		HookSpecificOutput: &HookSpecificOutput{
			HookEventName:     string(kind),
			AdditionalContext: outcome.AdditionalContext,
		},
	}
}
