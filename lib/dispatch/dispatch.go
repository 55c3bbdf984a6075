// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aleph-agents/aleph/lib/clock"
	"github.com/aleph-agents/aleph/lib/inbox"
	"github.com/aleph-agents/aleph/lib/message"
)

// Mode is an agent's current turn state, as observed by the runtime's
// turn-boundary signals.
type Mode string

const (
	ModeIdle Mode = "idle"
	ModeBusy Mode = "busy"
)

// Injector wakes an idle agent by injecting a new user-turn directly
// into its runtime session.
type Injector interface {
	InjectUserTurn(agentID, text string) error
}

type agentState struct {
	mode               Mode
	lastTurnBoundaryAt time.Time
	inFlightToolCalls  int
	injectedThisTurn   map[string]bool
}

// Dispatcher tracks per-agent turn state and decides, on each
// PostToolUse call and each turn-complete signal, whether unread mail
// should be surfaced and how.
type Dispatcher struct {
	inbox      *inbox.Store
	injector   Injector
	inboxRoot  string
	mu         sync.Mutex
	states     map[string]*agentState
	clk        clock.Clock
}

// New returns a Dispatcher backed by the given inbox store. inboxRoot
// is the path prefix quoted in synthetic user-turn text so the agent
// can locate the full message body.
func New(inboxStore *inbox.Store, injector Injector, inboxRoot string) *Dispatcher {
	return &Dispatcher{
		inbox:     inboxStore,
		injector:  injector,
		inboxRoot: inboxRoot,
		states:    make(map[string]*agentState),
		clk:       clock.Real(),
	}
}

// SetClock overrides the Dispatcher's time source, letting a test drive
// turn-boundary bookkeeping with a clock.Fake instead of the real wall
// clock.
func (d *Dispatcher) SetClock(c clock.Clock) {
	d.clk = c
}

func (d *Dispatcher) stateFor(agentID string) *agentState {
	s, ok := d.states[agentID]
	if !ok {
		s = &agentState{mode: ModeIdle, injectedThisTurn: make(map[string]bool)}
		d.states[agentID] = s
	}
	return s
}

// OnUserTurnStart marks the beginning of a new turn: in-flight tool
// call count resets and the injected-this-turn set is cleared, so a
// still-unread message becomes eligible for injection again.
func (d *Dispatcher) OnUserTurnStart(agentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stateFor(agentID)
	s.lastTurnBoundaryAt = d.clk.Now()
	s.inFlightToolCalls = 0
	s.injectedThisTurn = make(map[string]bool)
}

// OnToolCallStart records a new in-flight tool call. The first tool
// call after a turn boundary transitions the agent to busy mode.
func (d *Dispatcher) OnToolCallStart(agentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stateFor(agentID)
	s.inFlightToolCalls++
	s.mode = ModeBusy
}

// OnToolCallEnd records a completed tool call.
func (d *Dispatcher) OnToolCallEnd(agentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stateFor(agentID)
	if s.inFlightToolCalls > 0 {
		s.inFlightToolCalls--
	}
}

// PostToolUseContext returns the additionalContext string a
// PostToolUse hook handler should attach for this agent: unread
// messages not already injected this turn, in priority-then-timestamp
// order, one line per message. Returns an empty string if there is
// nothing new to surface.
func (d *Dispatcher) PostToolUseContext(agentID string) (string, error) {
	summaries, err := d.inbox.ListUnread(agentID)
	if err != nil {
		return "", fmt.Errorf("dispatch: listing unread for %s: %w", agentID, err)
	}

	d.mu.Lock()
	s := d.stateFor(agentID)
	var lines []string
	for _, m := range summaries {
		if s.injectedThisTurn[m.MessageID] {
			continue
		}
		s.injectedThisTurn[m.MessageID] = true
		lines = append(lines, formatLine(d.inboxRoot, agentID, m))
	}
	d.mu.Unlock()

	return strings.Join(lines, "\n"), nil
}

// HandleTurnComplete switches the agent to idle when the runtime
// signals no pending tool calls remain, and if there is unread mail,
// wakes it immediately with a synthetic user-turn rather than waiting
// for the next tool call that may never come.
func (d *Dispatcher) HandleTurnComplete(agentID string) error {
	d.mu.Lock()
	s := d.stateFor(agentID)
	if s.inFlightToolCalls > 0 {
		d.mu.Unlock()
		return nil
	}
	s.mode = ModeIdle
	d.mu.Unlock()

	summaries, err := d.inbox.ListUnread(agentID)
	if err != nil {
		return fmt.Errorf("dispatch: listing unread for %s: %w", agentID, err)
	}
	if len(summaries) == 0 {
		return nil
	}

	m := summaries[0]
	text := fmt.Sprintf("[Message from %s] %s (body at %s)",
		m.From, m.Text, messagePath(d.inboxRoot, agentID, m.MessageID))

	if d.injector == nil {
		return nil
	}
	if err := d.injector.InjectUserTurn(agentID, text); err != nil {
		return fmt.Errorf("dispatch: injecting user turn for %s: %w", agentID, err)
	}
	return nil
}

// Mode reports the agent's currently tracked turn state.
func (d *Dispatcher) Mode(agentID string) Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateFor(agentID).mode
}

// MarkReadFromPath marks the inbox message read if path names a
// message file inside agentID's own inbox directory, i.e. the agent
// used its own Read tool to open a mail body directly rather than
// waiting on the next PostToolUse injection. Any other path — a
// message addressed to someone else, or a file outside the inbox
// entirely — is silently ignored.
func (d *Dispatcher) MarkReadFromPath(agentID, path string) error {
	dir := filepath.Join(d.inboxRoot, agentID)
	rel, err := filepath.Rel(dir, path)
	if err != nil || strings.HasPrefix(rel, "..") || rel == "." {
		return nil
	}
	if filepath.Ext(rel) != ".md" {
		return nil
	}
	messageID := strings.TrimSuffix(rel, ".md")
	return d.inbox.MarkRead(agentID, messageID)
}

func messagePath(inboxRoot, agentID, messageID string) string {
	return filepath.Join(inboxRoot, agentID, messageID+".md")
}

func formatLine(inboxRoot, agentID string, m message.Summary) string {
	return fmt.Sprintf("[Message from %s] %s (%s, %s)",
		m.From, m.Text, m.Priority, messagePath(inboxRoot, agentID, m.MessageID))
}
