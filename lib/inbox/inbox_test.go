// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package inbox

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aleph-agents/aleph/lib/message"
	"github.com/aleph-agents/aleph/lib/quarantine"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	root := filepath.Join(t.TempDir(), "inbox")
	q := quarantine.New(filepath.Join(t.TempDir(), "quarantine"))
	return New(root, q)
}

func TestDeliver_WritesReadableMessage(t *testing.T) {
	s := newStore(t)

	id, err := s.Deliver("aleph-bbbbbbbb", Draft{
		From:     "aleph-aaaaaaaa",
		To:       "aleph-bbbbbbbb",
		Summary:  "hello",
		Priority: message.PriorityNormal,
		Body:     "hi there",
	})
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty message id")
	}

	path := filepath.Join(s.root, "aleph-bbbbbbbb", id+".md")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected message file at %s: %v", path, err)
	}
}

func TestDeliver_ConcurrentNeverCollide(t *testing.T) {
	s := newStore(t)

	const n = 100
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			id, err := s.Deliver("aleph-bbbbbbbb", Draft{
				From:     "aleph-aaaaaaaa",
				To:       "aleph-bbbbbbbb",
				Summary:  "concurrent",
				Priority: message.PriorityLow,
				Body:     "x",
			})
			if err != nil {
				t.Errorf("Deliver failed: %v", err)
				return
			}
			ids[idx] = id
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate message id: %s", id)
		}
		seen[id] = true
	}
}

func TestListUnread_OrdersByPriorityThenTimestamp(t *testing.T) {
	s := newStore(t)
	recipient := "aleph-bbbbbbbb"

	deliverAt := func(priority message.Priority, summary string) {
		if _, err := s.Deliver(recipient, Draft{
			From: "aleph-aaaaaaaa", To: recipient,
			Summary: summary, Priority: priority, Body: "body",
		}); err != nil {
			t.Fatalf("Deliver failed: %v", err)
		}
	}

	deliverAt(message.PriorityLow, "low")
	deliverAt(message.PriorityHigh, "high")
	deliverAt(message.PriorityNormal, "normal")

	summaries, err := s.ListUnread(recipient)
	if err != nil {
		t.Fatalf("ListUnread failed: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 unread summaries, got %d", len(summaries))
	}
	if summaries[0].Text != "high" || summaries[1].Text != "normal" || summaries[2].Text != "low" {
		t.Errorf("unexpected order: %+v", summaries)
	}
}

func TestListUnread_ExcludesMarkedRead(t *testing.T) {
	s := newStore(t)
	recipient := "aleph-bbbbbbbb"

	id, err := s.Deliver(recipient, Draft{From: "aleph-aaaaaaaa", To: recipient, Summary: "s", Priority: message.PriorityNormal, Body: "b"})
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if err := s.MarkRead(recipient, id); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}

	summaries, err := s.ListUnread(recipient)
	if err != nil {
		t.Fatalf("ListUnread failed: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("expected no unread messages after MarkRead, got %d", len(summaries))
	}
}

func TestMarkRead_Idempotent(t *testing.T) {
	s := newStore(t)
	recipient := "aleph-bbbbbbbb"

	id, err := s.Deliver(recipient, Draft{From: "aleph-aaaaaaaa", To: recipient, Summary: "s", Priority: message.PriorityNormal, Body: "b"})
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if err := s.MarkRead(recipient, id); err != nil {
		t.Fatalf("first MarkRead failed: %v", err)
	}
	if err := s.MarkRead(recipient, id); err != nil {
		t.Fatalf("second MarkRead should be a no-op, got: %v", err)
	}
}

func TestListUnread_QuarantinesMalformedFile(t *testing.T) {
	s := newStore(t)
	recipient := "aleph-bbbbbbbb"
	dir := filepath.Join(s.root, recipient)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	if _, err := s.Deliver(recipient, Draft{From: "aleph-aaaaaaaa", To: recipient, Summary: "good", Priority: message.PriorityNormal, Body: "b"}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "01BADBADBADBADBADBADBADBAD.md"), []byte("not a message"), 0644); err != nil {
		t.Fatalf("writing malformed file failed: %v", err)
	}

	summaries, err := s.ListUnread(recipient)
	if err != nil {
		t.Fatalf("ListUnread should skip malformed files, not fail: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected the one well-formed message to survive, got %d", len(summaries))
	}

	records, err := s.quarantine.List("inbox")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected the malformed file to be quarantined, got %d records", len(records))
	}
}

func TestPrune_DeletesOnlyReadMessagesOlderThanPolicy(t *testing.T) {
	s := newStore(t)
	recipient := "aleph-bbbbbbbb"

	oldID, err := s.Deliver(recipient, Draft{From: "aleph-aaaaaaaa", To: recipient, Summary: "old", Priority: message.PriorityNormal, Body: "b"})
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if err := s.MarkRead(recipient, oldID); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	oldPath := filepath.Join(s.root, recipient, oldID+".md")
	oldTime := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldPath, oldTime, oldTime); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	unreadID, err := s.Deliver(recipient, Draft{From: "aleph-aaaaaaaa", To: recipient, Summary: "unread", Priority: message.PriorityNormal, Body: "b"})
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if err := s.Prune(recipient, Policy{OlderThan: 24 * time.Hour}); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("expected old read message to be pruned")
	}
	unreadPath := filepath.Join(s.root, recipient, unreadID+".md")
	if _, err := os.Stat(unreadPath); err != nil {
		t.Error("expected unread message to survive prune")
	}
}
