// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package taskboard

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aleph-agents/aleph/lib/fsutil"
)

const lockTimeout = 5 * time.Second

// Status is a task's position in its lifecycle.
type Status string

const (
	StatusOpen       Status = "open"
	StatusClaimed    Status = "claimed"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

// Priority is a task's relative urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Task is one record in the board, optionally with nested subtasks.
type Task struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Status      Status   `yaml:"status"`
	Assignee    *string  `yaml:"assignee"`
	Priority    Priority `yaml:"priority"`
	CompletedAt *string  `yaml:"completed_at,omitempty"`
	Subtasks    []*Task  `yaml:"subtasks,omitempty"`
}

type document struct {
	Tasks []*Task `yaml:"tasks"`
}

// NotFoundError reports that no task with the given id exists.
type NotFoundError struct{ TaskID string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("taskboard: task %q not found", e.TaskID) }

// AlreadyClaimedError reports that a claim was attempted on a task
// already held by another agent.
type AlreadyClaimedError struct {
	TaskID string
	Holder string
}

func (e *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("taskboard: task %q already claimed by %s", e.TaskID, e.Holder)
}

// InvalidTransitionError reports a status change forbidden by the
// task lifecycle invariants.
type InvalidTransitionError struct {
	TaskID string
	From   Status
	To     Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("taskboard: task %q cannot transition from %q to %q", e.TaskID, e.From, e.To)
}

// Board manages a single TODO.yml file.
type Board struct {
	path string
}

// New returns a Board backed by the given file path.
func New(path string) *Board {
	return &Board{path: path}
}

func (b *Board) lockPath() string {
	return b.path + ".lock"
}

// List reads and parses the board without locking; the atomic-write
// contract on writers prevents a torn read in practice.
func (b *Board) List() ([]*Task, error) {
	doc, err := b.read()
	if err != nil {
		return nil, err
	}
	return doc.Tasks, nil
}

func (b *Board) read() (*document, error) {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return &document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("taskboard: reading %s: %w", b.path, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("taskboard: parsing %s: %w", b.path, err)
	}
	return &doc, nil
}

func (b *Board) write(doc *document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("taskboard: encoding board: %w", err)
	}
	return fsutil.AtomicWrite(b.path, data, 0644)
}

// findTask locates a task by dotted id, searching recursively through
// subtasks.
func findTask(tasks []*Task, id string) *Task {
	for _, t := range tasks {
		if t.ID == id {
			return t
		}
		if found := findTask(t.Subtasks, id); found != nil {
			return found
		}
	}
	return nil
}

// Claim locates the task, fails if it is not open, and otherwise sets
// assignee and status=claimed under the board's exclusive lock.
func (b *Board) Claim(taskID, agentID string) error {
	lock, err := fsutil.ExclusiveLock(b.lockPath(), lockTimeout)
	if err != nil {
		return fmt.Errorf("taskboard: locking board: %w", err)
	}
	defer lock.Unlock()

	doc, err := b.read()
	if err != nil {
		return err
	}

	task := findTask(doc.Tasks, taskID)
	if task == nil {
		return &NotFoundError{TaskID: taskID}
	}
	if task.Status == StatusClaimed || task.Status == StatusInProgress {
		holder := ""
		if task.Assignee != nil {
			holder = *task.Assignee
		}
		return &AlreadyClaimedError{TaskID: taskID, Holder: holder}
	}
	if task.Status != StatusOpen {
		return &InvalidTransitionError{TaskID: taskID, From: task.Status, To: StatusClaimed}
	}

	task.Status = StatusClaimed
	task.Assignee = &agentID

	return b.write(doc)
}

// permittedTransitions encodes the lifecycle invariants: open ->
// claimed -> in-progress -> {done, blocked}; blocked -> in-progress;
// claimed -> open (release, handled separately by Release).
var permittedTransitions = map[Status]map[Status]bool{
	StatusOpen:       {StatusClaimed: true},
	StatusClaimed:    {StatusInProgress: true, StatusOpen: true},
	StatusInProgress: {StatusDone: true, StatusBlocked: true},
	StatusBlocked:    {StatusInProgress: true},
}

// Status sets a task's status if the transition is permitted. Setting
// status to done records a completion timestamp.
func (b *Board) Status(taskID string, newStatus Status) error {
	lock, err := fsutil.ExclusiveLock(b.lockPath(), lockTimeout)
	if err != nil {
		return fmt.Errorf("taskboard: locking board: %w", err)
	}
	defer lock.Unlock()

	doc, err := b.read()
	if err != nil {
		return err
	}

	task := findTask(doc.Tasks, taskID)
	if task == nil {
		return &NotFoundError{TaskID: taskID}
	}

	if !permittedTransitions[task.Status][newStatus] {
		return &InvalidTransitionError{TaskID: taskID, From: task.Status, To: newStatus}
	}

	task.Status = newStatus
	if newStatus == StatusDone {
		completed := time.Now().UTC().Format(time.RFC3339)
		task.CompletedAt = &completed
	}

	return b.write(doc)
}

// Release resets a claimed or in-progress task to open, clearing its
// assignee. Only the current assignee may release; anyone else
// attempting to release gets InvalidTransitionError.
func (b *Board) Release(taskID, agentID string) error {
	lock, err := fsutil.ExclusiveLock(b.lockPath(), lockTimeout)
	if err != nil {
		return fmt.Errorf("taskboard: locking board: %w", err)
	}
	defer lock.Unlock()

	doc, err := b.read()
	if err != nil {
		return err
	}

	task := findTask(doc.Tasks, taskID)
	if task == nil {
		return &NotFoundError{TaskID: taskID}
	}
	if task.Assignee == nil || *task.Assignee != agentID {
		return &InvalidTransitionError{TaskID: taskID, From: task.Status, To: StatusOpen}
	}

	task.Status = StatusOpen
	task.Assignee = nil

	return b.write(doc)
}
