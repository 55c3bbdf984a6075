// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aleph-agents/aleph/lib/inbox"
	"github.com/aleph-agents/aleph/lib/message"
	"github.com/aleph-agents/aleph/lib/quarantine"
)

type fakeInjector struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeInjector) InjectUserTurn(agentID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, agentID+": "+text)
	return nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *inbox.Store, *fakeInjector) {
	t.Helper()
	root := t.TempDir()
	q := quarantine.New(filepath.Join(root, "quarantine"))
	store := inbox.New(filepath.Join(root, "inbox"), q)
	injector := &fakeInjector{}
	return New(store, injector, filepath.Join(root, "inbox")), store, injector
}

func TestOnToolCallStart_EntersBusyMode(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	d.OnUserTurnStart("aleph-a")
	if d.Mode("aleph-a") != ModeIdle {
		t.Fatalf("expected idle at turn start, got %q", d.Mode("aleph-a"))
	}
	d.OnToolCallStart("aleph-a")
	if d.Mode("aleph-a") != ModeBusy {
		t.Errorf("expected busy after first tool call, got %q", d.Mode("aleph-a"))
	}
}

func TestPostToolUseContext_ListsUnreadOnce(t *testing.T) {
	d, store, _ := newTestDispatcher(t)
	if _, err := store.Deliver("aleph-a", inbox.Draft{From: "aleph-b", To: "aleph-a", Summary: "hi", Priority: message.PriorityNormal, Body: "b"}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	d.OnUserTurnStart("aleph-a")
	d.OnToolCallStart("aleph-a")

	ctx, err := d.PostToolUseContext("aleph-a")
	if err != nil {
		t.Fatalf("PostToolUseContext failed: %v", err)
	}
	if !strings.Contains(ctx, "hi") {
		t.Errorf("expected context to mention the message, got %q", ctx)
	}

	// Same turn, second tool call: the message was already surfaced,
	// so it must not appear again.
	again, err := d.PostToolUseContext("aleph-a")
	if err != nil {
		t.Fatalf("PostToolUseContext failed: %v", err)
	}
	if again != "" {
		t.Errorf("expected no duplicate injection within one turn, got %q", again)
	}
}

func TestPostToolUseContext_ReappearsNextTurnUntilRead(t *testing.T) {
	d, store, _ := newTestDispatcher(t)
	if _, err := store.Deliver("aleph-a", inbox.Draft{From: "aleph-b", To: "aleph-a", Summary: "still unread", Priority: message.PriorityNormal, Body: "b"}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	d.OnUserTurnStart("aleph-a")
	d.OnToolCallStart("aleph-a")
	first, _ := d.PostToolUseContext("aleph-a")
	if !strings.Contains(first, "still unread") {
		t.Fatalf("expected message in first turn's context, got %q", first)
	}

	d.OnUserTurnStart("aleph-a")
	d.OnToolCallStart("aleph-a")
	second, _ := d.PostToolUseContext("aleph-a")
	if !strings.Contains(second, "still unread") {
		t.Errorf("expected at-least-once redelivery across turns, got %q", second)
	}
}

func TestHandleTurnComplete_WakesIdleAgentWithUnreadMail(t *testing.T) {
	d, store, injector := newTestDispatcher(t)
	if _, err := store.Deliver("aleph-a", inbox.Draft{From: "aleph-b", To: "aleph-a", Summary: "wake up", Priority: message.PriorityHigh, Body: "b"}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if err := d.HandleTurnComplete("aleph-a"); err != nil {
		t.Fatalf("HandleTurnComplete failed: %v", err)
	}

	if len(injector.calls) != 1 {
		t.Fatalf("expected exactly one injected turn, got %d: %v", len(injector.calls), injector.calls)
	}
	if !strings.Contains(injector.calls[0], "wake up") {
		t.Errorf("expected injected text to mention the message, got %q", injector.calls[0])
	}
}

func TestHandleTurnComplete_NoOpWithoutUnreadMail(t *testing.T) {
	d, _, injector := newTestDispatcher(t)
	if err := d.HandleTurnComplete("aleph-a"); err != nil {
		t.Fatalf("HandleTurnComplete failed: %v", err)
	}
	if len(injector.calls) != 0 {
		t.Errorf("expected no injection with an empty inbox, got %v", injector.calls)
	}
}

func TestHandleTurnComplete_SkippedWithInFlightToolCalls(t *testing.T) {
	d, store, injector := newTestDispatcher(t)
	if _, err := store.Deliver("aleph-a", inbox.Draft{From: "aleph-b", To: "aleph-a", Summary: "not yet", Priority: message.PriorityNormal, Body: "b"}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	d.OnUserTurnStart("aleph-a")
	d.OnToolCallStart("aleph-a")

	if err := d.HandleTurnComplete("aleph-a"); err != nil {
		t.Fatalf("HandleTurnComplete failed: %v", err)
	}
	if len(injector.calls) != 0 {
		t.Errorf("expected no injection while a tool call is still in flight, got %v", injector.calls)
	}
	if d.Mode("aleph-a") != ModeBusy {
		t.Errorf("expected mode to remain busy, got %q", d.Mode("aleph-a"))
	}
}
