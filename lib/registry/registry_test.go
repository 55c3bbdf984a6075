// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aleph-agents/aleph/lib/clock"
	"github.com/aleph-agents/aleph/lib/testutil"
)

func TestRegister_WritesRecordAndHeartbeat(t *testing.T) {
	root := t.TempDir()
	reg := New(root, time.Minute)

	rec := Record{AgentID: "aleph-aaaaaaaa", PID: os.Getpid(), Mode: "default", StartedAt: time.Now()}
	if err := reg.Register(rec); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, err := reg.Get("aleph-aaaaaaaa")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.PID != os.Getpid() {
		t.Errorf("unexpected PID: %d", got.PID)
	}

	if _, err := os.Stat(filepath.Join(root, "aleph-aaaaaaaa.heartbeat")); err != nil {
		t.Errorf("expected heartbeat file to exist: %v", err)
	}
}

func TestListAlive_KeepsLiveProcessRegardlessOfHeartbeat(t *testing.T) {
	root := t.TempDir()
	reg := New(root, time.Millisecond)

	rec := Record{AgentID: "aleph-aaaaaaaa", PID: os.Getpid(), StartedAt: time.Now()}
	if err := reg.Register(rec); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond) // heartbeat now older than staleAfter

	alive, err := reg.ListAlive()
	if err != nil {
		t.Fatalf("ListAlive failed: %v", err)
	}
	if len(alive) != 1 {
		t.Fatalf("expected the live-PID row to survive regardless of heartbeat age, got %d", len(alive))
	}
}

func TestListAlive_RemovesDeadPIDWithStaleHeartbeat(t *testing.T) {
	root := t.TempDir()
	reg := New(root, time.Millisecond)

	// PID 1 belongs to init and is virtually never our own process,
	// but to avoid any environment coupling, pick a PID guaranteed
	// not to exist: the max plausible PID value.
	const deadPID = 1 << 30

	rec := Record{AgentID: "aleph-dead0000", PID: deadPID, StartedAt: time.Now()}
	if err := reg.Register(rec); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	alive, err := reg.ListAlive()
	if err != nil {
		t.Fatalf("ListAlive failed: %v", err)
	}
	if len(alive) != 0 {
		t.Errorf("expected dead-PID, stale-heartbeat row to be pruned, got %d rows", len(alive))
	}

	if _, err := reg.Get("aleph-dead0000"); err == nil {
		t.Error("expected pruned record to be removed from disk")
	}
}

func TestDeregister_RemovesRecordAndHeartbeat(t *testing.T) {
	root := t.TempDir()
	reg := New(root, time.Minute)

	if err := reg.Register(Record{AgentID: "aleph-aaaaaaaa", PID: os.Getpid(), StartedAt: time.Now()}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Deregister("aleph-aaaaaaaa"); err != nil {
		t.Fatalf("Deregister failed: %v", err)
	}

	if _, err := reg.Get("aleph-aaaaaaaa"); err == nil {
		t.Error("expected record to be gone after Deregister")
	}
}

// TestListAlive_RemovesDeadPIDAfterFakeClockAdvance drives staleness
// with a clock.Fake instead of a real time.Sleep, so the test asserts
// on exact boundary behavior (StaleAfter itself is not yet stale, one
// tick past it is) rather than the "some sleep longer than StaleAfter"
// approximation the real-clock tests above use.
func TestListAlive_RemovesDeadPIDAfterFakeClockAdvance(t *testing.T) {
	root := t.TempDir()
	const staleAfter = time.Minute
	reg := New(root, staleAfter)
	fake := clock.Fake(time.Unix(0, 0))
	reg.SetClock(fake)

	const deadPID = 1 << 30
	agentID := testutil.UniqueID("aleph-dead")
	if err := reg.Register(Record{AgentID: agentID, PID: deadPID, StartedAt: fake.Now()}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	fake.Advance(staleAfter)
	alive, err := reg.ListAlive()
	if err != nil {
		t.Fatalf("ListAlive failed: %v", err)
	}
	if len(alive) != 1 {
		t.Fatalf("expected the row to still be exactly at the boundary, not yet stale, got %d rows", len(alive))
	}

	fake.Advance(time.Nanosecond)
	alive, err = reg.ListAlive()
	if err != nil {
		t.Fatalf("ListAlive failed: %v", err)
	}
	if len(alive) != 0 {
		t.Errorf("expected the row to be pruned one tick past StaleAfter, got %d rows", len(alive))
	}
}

func TestHeartbeat_RefreshesModTime(t *testing.T) {
	root := t.TempDir()
	reg := New(root, time.Minute)

	if err := reg.Register(Record{AgentID: "aleph-aaaaaaaa", PID: os.Getpid(), StartedAt: time.Now()}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	path := filepath.Join(root, "aleph-aaaaaaaa.heartbeat")
	old, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if err := reg.Heartbeat("aleph-aaaaaaaa"); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	updated, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if !updated.ModTime().After(old.ModTime()) {
		t.Error("expected heartbeat mtime to advance")
	}
}
