// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package taskboard

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"
)

func newBoard(t *testing.T, initial string) *Board {
	t.Helper()
	path := filepath.Join(t.TempDir(), "TODO.yml")
	if initial != "" {
		var doc document
		if err := yaml.Unmarshal([]byte(initial), &doc); err != nil {
			t.Fatalf("seeding board failed: %v", err)
		}
		b := New(path)
		if err := b.write(&doc); err != nil {
			t.Fatalf("writing seed board failed: %v", err)
		}
		return b
	}
	return New(path)
}

const seedYAML = `
tasks:
  - id: "1"
    description: build the thing
    status: open
    assignee: null
    priority: high
  - id: "2"
    description: parent task
    status: open
    assignee: null
    priority: medium
    subtasks:
      - id: "2.1"
        description: nested subtask
        status: open
        assignee: null
        priority: low
`

func TestList_ReturnsSeededTasks(t *testing.T) {
	b := newBoard(t, seedYAML)
	tasks, err := b.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 top-level tasks, got %d", len(tasks))
	}
}

func TestClaim_SetsAssigneeAndStatus(t *testing.T) {
	b := newBoard(t, seedYAML)

	if err := b.Claim("1", "aleph-aaaaaaaa"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	tasks, err := b.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if tasks[0].Status != StatusClaimed {
		t.Errorf("expected status claimed, got %q", tasks[0].Status)
	}
	if tasks[0].Assignee == nil || *tasks[0].Assignee != "aleph-aaaaaaaa" {
		t.Errorf("expected assignee to be set, got %v", tasks[0].Assignee)
	}
}

func TestClaim_FindsNestedSubtask(t *testing.T) {
	b := newBoard(t, seedYAML)
	if err := b.Claim("2.1", "aleph-aaaaaaaa"); err != nil {
		t.Fatalf("Claim on nested subtask failed: %v", err)
	}
}

func TestClaim_AlreadyClaimedByAnother(t *testing.T) {
	b := newBoard(t, seedYAML)
	if err := b.Claim("1", "aleph-aaaaaaaa"); err != nil {
		t.Fatalf("first Claim failed: %v", err)
	}

	err := b.Claim("1", "aleph-bbbbbbbb")
	var alreadyClaimed *AlreadyClaimedError
	if !errors.As(err, &alreadyClaimed) {
		t.Fatalf("expected AlreadyClaimedError, got %v", err)
	}
	if alreadyClaimed.Holder != "aleph-aaaaaaaa" {
		t.Errorf("unexpected holder: %q", alreadyClaimed.Holder)
	}
}

func TestClaim_NotFound(t *testing.T) {
	b := newBoard(t, seedYAML)
	err := b.Claim("999", "aleph-aaaaaaaa")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestStatus_PermittedTransitions(t *testing.T) {
	b := newBoard(t, seedYAML)
	if err := b.Claim("1", "aleph-aaaaaaaa"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := b.Status("1", StatusInProgress); err != nil {
		t.Fatalf("transition to in-progress failed: %v", err)
	}
	if err := b.Status("1", StatusDone); err != nil {
		t.Fatalf("transition to done failed: %v", err)
	}

	tasks, _ := b.List()
	if tasks[0].CompletedAt == nil {
		t.Error("expected completion timestamp to be recorded")
	}
}

func TestStatus_RejectsInvalidTransition(t *testing.T) {
	b := newBoard(t, seedYAML)
	err := b.Status("1", StatusDone) // open -> done is not permitted
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestRelease_OnlyAssigneeMayRelease(t *testing.T) {
	b := newBoard(t, seedYAML)
	if err := b.Claim("1", "aleph-aaaaaaaa"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	if err := b.Release("1", "aleph-bbbbbbbb"); err == nil {
		t.Error("expected release by non-assignee to fail")
	}

	if err := b.Release("1", "aleph-aaaaaaaa"); err != nil {
		t.Fatalf("Release by assignee failed: %v", err)
	}

	tasks, _ := b.List()
	if tasks[0].Status != StatusOpen || tasks[0].Assignee != nil {
		t.Errorf("expected task reset to open/unassigned, got status=%q assignee=%v", tasks[0].Status, tasks[0].Assignee)
	}
}

func TestClaim_ConcurrentClaimsOnlyOneWins(t *testing.T) {
	b := newBoard(t, seedYAML)

	const n = 10
	var wg sync.WaitGroup
	successes := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := b.Claim("1", "aleph-agent")
			successes[idx] = err == nil
		}(i)
	}
	wg.Wait()

	won := 0
	for _, ok := range successes {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Errorf("expected exactly one concurrent claim to succeed, got %d", won)
	}
}
