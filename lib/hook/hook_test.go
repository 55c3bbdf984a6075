// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package hook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDispatch_ConcatenatesContextsInOrder(t *testing.T) {
	bus := New()
	bus.Register(PostToolUse, func(ctx context.Context, e Event) (Decision, error) {
		return Decision{AdditionalContext: "first"}, nil
	})
	bus.Register(PostToolUse, func(ctx context.Context, e Event) (Decision, error) {
		return Decision{AdditionalContext: "second"}, nil
	})

	outcome := bus.Dispatch(context.Background(), Event{Kind: PostToolUse, AgentID: "aleph-a"})
	if outcome.AdditionalContext != "first\n\nsecond" {
		t.Errorf("unexpected concatenation: %q", outcome.AdditionalContext)
	}
}

func TestDispatch_FirstNonDeferPermissionWins(t *testing.T) {
	bus := New()
	bus.Register(PreToolUse, func(ctx context.Context, e Event) (Decision, error) {
		return Decision{Permission: Defer}, nil
	})
	bus.Register(PreToolUse, func(ctx context.Context, e Event) (Decision, error) {
		return Decision{Permission: Deny, Message: "blocked"}, nil
	})
	bus.Register(PreToolUse, func(ctx context.Context, e Event) (Decision, error) {
		return Decision{Permission: Allow}, nil
	})

	outcome := bus.Dispatch(context.Background(), Event{Kind: PreToolUse, AgentID: "aleph-a"})
	if outcome.Permission != Deny {
		t.Errorf("expected first non-defer decision (deny) to win, got %q", outcome.Permission)
	}
	if outcome.Message != "blocked" {
		t.Errorf("expected deny reason to be carried, got %q", outcome.Message)
	}
}

func TestDispatch_RemainingHandlersStillRunAfterDecision(t *testing.T) {
	bus := New()
	ran := make([]bool, 2)
	bus.Register(PreToolUse, func(ctx context.Context, e Event) (Decision, error) {
		ran[0] = true
		return Decision{Permission: Deny}, nil
	})
	bus.Register(PreToolUse, func(ctx context.Context, e Event) (Decision, error) {
		ran[1] = true
		return Decision{AdditionalContext: "side effect context"}, nil
	})

	outcome := bus.Dispatch(context.Background(), Event{Kind: PreToolUse, AgentID: "aleph-a"})
	if !ran[0] || !ran[1] {
		t.Fatalf("expected both handlers to run, got %v", ran)
	}
	if outcome.AdditionalContext != "side effect context" {
		t.Errorf("expected second handler's context to still contribute, got %q", outcome.AdditionalContext)
	}
}

func TestDispatch_HandlerErrorDoesNotAbortChain(t *testing.T) {
	bus := New()
	bus.Register(PostToolUse, func(ctx context.Context, e Event) (Decision, error) {
		return Decision{}, errors.New("mail delivery unavailable")
	})
	bus.Register(PostToolUse, func(ctx context.Context, e Event) (Decision, error) {
		return Decision{AdditionalContext: "still ran"}, nil
	})

	outcome := bus.Dispatch(context.Background(), Event{Kind: PostToolUse, AgentID: "aleph-a"})
	if outcome.AdditionalContext != "still ran" {
		t.Errorf("expected chain to continue past a failing handler, got %q", outcome.AdditionalContext)
	}
}

func TestDispatch_SerializesPerAgent(t *testing.T) {
	bus := New()
	var mu sync.Mutex
	inFlight := 0
	maxConcurrent := 0

	bus.Register(PreToolUse, func(ctx context.Context, e Event) (Decision, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxConcurrent {
			maxConcurrent = inFlight
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return Decision{}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Dispatch(context.Background(), Event{Kind: PreToolUse, AgentID: "aleph-shared"})
		}()
	}
	wg.Wait()

	if maxConcurrent != 1 {
		t.Errorf("expected dispatch to serialize per agent, saw %d concurrent handler runs", maxConcurrent)
	}
}

func TestDispatch_DifferentAgentsRunIndependently(t *testing.T) {
	bus := New()
	release := make(chan struct{})
	started := make(chan struct{}, 2)

	bus.Register(PreToolUse, func(ctx context.Context, e Event) (Decision, error) {
		started <- struct{}{}
		<-release
		return Decision{}, nil
	})

	var wg sync.WaitGroup
	for _, agent := range []string{"aleph-a", "aleph-b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			bus.Dispatch(context.Background(), Event{Kind: PreToolUse, AgentID: id})
		}(agent)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first agent's handler never started")
	}
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("second agent's handler never started concurrently with the first")
	}

	close(release)
	wg.Wait()
}

func TestEnvelope_EmptyWhenNoContext(t *testing.T) {
	env := Envelope(PostToolUse, Outcome{})
	if env.HookSpecificOutput != nil {
		t.Errorf("expected nil hookSpecificOutput for empty context, got %+v", env.HookSpecificOutput)
	}
}

func TestEnvelope_PopulatedWithContext(t *testing.T) {
	env := Envelope(PostToolUse, Outcome{AdditionalContext: "new mail"})
	if env.HookSpecificOutput == nil {
		t.Fatal("expected populated hookSpecificOutput")
	}
	if env.HookSpecificOutput.HookEventName != string(PostToolUse) {
		t.Errorf("unexpected event name: %q", env.HookSpecificOutput.HookEventName)
	}
}
