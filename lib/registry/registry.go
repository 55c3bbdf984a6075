// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aleph-agents/aleph/lib/clock"
	"github.com/aleph-agents/aleph/lib/fsutil"
)

// Record is one agent's registry row.
type Record struct {
	AgentID       string    `json:"agent_id"`
	PID           int       `json:"pid"`
	ParentID      string    `json:"parent_id,omitempty"`
	Depth         int       `json:"depth"`
	ProjectPath   string    `json:"project_path"`
	Mode          string    `json:"mode"`
	Ephemeral     bool      `json:"ephemeral"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Registry manages agent rows and heartbeat files rooted at a single
// "registry" directory.
type Registry struct {
	root       string
	staleAfter time.Duration
	clk        clock.Clock
}

// New returns a Registry rooted at the given directory (typically
// "<home>/registry"). staleAfter is how long a heartbeat may go quiet
// before a dead-PID row is eligible for garbage collection.
func New(root string, staleAfter time.Duration) *Registry {
	return &Registry{root: root, staleAfter: staleAfter, clk: clock.Real()}
}

// SetClock overrides the Registry's time source, letting a test drive
// heartbeat staleness with a clock.Fake instead of the real wall
// clock.
func (r *Registry) SetClock(c clock.Clock) {
	r.clk = c
}

func (r *Registry) recordPath(agentID string) string {
	return filepath.Join(r.root, agentID+".json")
}

func (r *Registry) heartbeatPath(agentID string) string {
	return filepath.Join(r.root, agentID+".heartbeat")
}

// Register writes a new registry row. Called once by an agent process
// on startup; the process is the row's sole owner thereafter.
func (r *Registry) Register(rec Record) error {
	if err := os.MkdirAll(r.root, 0755); err != nil {
		return fmt.Errorf("registry: creating %s: %w", r.root, err)
	}

	data, err := json.MarshalIndent(&rec, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: encoding record for %s: %w", rec.AgentID, err)
	}
	if err := fsutil.AtomicWrite(r.recordPath(rec.AgentID), data, 0644); err != nil {
		return fmt.Errorf("registry: writing record for %s: %w", rec.AgentID, err)
	}
	return r.Heartbeat(rec.AgentID)
}

// Heartbeat touches the agent's heartbeat file, refreshing its mtime.
func (r *Registry) Heartbeat(agentID string) error {
	path := r.heartbeatPath(agentID)
	now := r.clk.Now()
	if err := os.Chtimes(path, now, now); err == nil {
		return nil
	}
	if err := fsutil.AtomicWrite(path, nil, 0644); err != nil {
		return fmt.Errorf("registry: heartbeat for %s: %w", agentID, err)
	}
	if err := os.Chtimes(path, now, now); err != nil {
		return fmt.Errorf("registry: heartbeat for %s: %w", agentID, err)
	}
	return nil
}

// Deregister removes an agent's registry row and heartbeat file on
// clean shutdown.
func (r *Registry) Deregister(agentID string) error {
	os.Remove(r.recordPath(agentID))
	os.Remove(r.heartbeatPath(agentID))
	return nil
}

// Get reads a single agent's registry row.
func (r *Registry) Get(agentID string) (*Record, error) {
	data, err := os.ReadFile(r.recordPath(agentID))
	if err != nil {
		return nil, fmt.Errorf("registry: reading record for %s: %w", agentID, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("registry: parsing record for %s: %w", agentID, err)
	}
	return &rec, nil
}

// ListAlive scans the registry, reconciling against live PIDs and
// heartbeats, and removes rows that are both PID-dead and
// heartbeat-stale. It returns the rows that survive reconciliation.
func (r *Registry) ListAlive() ([]Record, error) {
	entries, err := os.ReadDir(r.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: listing %s: %w", r.root, err)
	}

	var alive []Record
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		agentID := strings.TrimSuffix(name, ".json")

		rec, err := r.Get(agentID)
		if err != nil {
			continue
		}

		if r.isStale(agentID, rec.PID) {
			r.Deregister(agentID)
			continue
		}
		alive = append(alive, *rec)
	}
	return alive, nil
}

func (r *Registry) isStale(agentID string, pid int) bool {
	if pidAlive(pid) {
		return false
	}

	info, err := os.Stat(r.heartbeatPath(agentID))
	if err != nil {
		// No heartbeat file at all and a dead PID: definitely stale.
		return true
	}
	return r.clk.Now().Sub(info.ModTime()) > r.staleAfter
}

// pidAlive reports whether a process with the given PID exists, using
// the zero-signal probe: sending signal 0 performs error checking
// without actually delivering a signal.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
