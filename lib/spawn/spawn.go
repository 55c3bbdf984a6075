// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package spawn

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/aleph-agents/aleph/lib/registry"
	"github.com/aleph-agents/aleph/lib/tmux"
)

// ErrDepthExceeded is returned when a spawn request would exceed the
// configured maximum subagent nesting depth.
var ErrDepthExceeded = errors.New("spawn: max depth exceeded")

// Request describes a subagent to launch.
type Request struct {
	ParentID  string
	ID        string // allocated if empty
	Prompt    string
	Project   string
	Mode      string
	Ephemeral bool
	Depth     int
}

// Spawner launches subagents into terminal-multiplexer windows and
// records them in the agent registry.
type Spawner struct {
	server     *tmux.Server
	registry   *registry.Registry
	maxDepth   int
	binaryPath string
}

// New returns a Spawner using the given tmux server, registry, binary
// to launch, and maximum nesting depth.
func New(server *tmux.Server, reg *registry.Registry, binaryPath string, maxDepth int) *Spawner {
	return &Spawner{server: server, registry: reg, binaryPath: binaryPath, maxDepth: maxDepth}
}

// Spawn validates depth, allocates an id if none was given, launches
// the harness binary in a new terminal-multiplexer window named after
// the id, writes a registry record, and returns the id without
// waiting for the launched process to become ready.
func (s *Spawner) Spawn(req Request) (string, error) {
	if req.Depth >= s.maxDepth {
		return "", fmt.Errorf("%w: depth %d >= max %d", ErrDepthExceeded, req.Depth, s.maxDepth)
	}

	id := req.ID
	if id == "" {
		var err error
		id, err = allocateID()
		if err != nil {
			return "", fmt.Errorf("spawn: allocating id: %w", err)
		}
	}

	args := []string{
		"--id", id,
		"--prompt", req.Prompt,
		"--project", req.Project,
		"--mode", req.Mode,
		"--depth", fmt.Sprintf("%d", req.Depth),
	}
	if req.ParentID != "" {
		args = append(args, "--parent", req.ParentID)
	}
	if req.Ephemeral {
		args = append(args, "--ephemeral")
	}

	// Set remain-on-exit server-wide first, so a command that exits at
	// once still leaves its pane behind. This fails harmlessly when no
	// server is running yet; the per-session set below then applies.
	_ = s.server.SetOption("", "remain-on-exit", "on")

	if err := s.server.NewSession(id, append([]string{s.binaryPath}, args...)...); err != nil {
		return "", fmt.Errorf("spawn: launching session %s: %w", id, err)
	}

	// remain-on-exit keeps the pane around after the harness process
	// exits so PaneStatus and CapturePane can still inspect it — without
	// it, tmux tears the pane down the instant the command finishes and
	// there is nothing left to attach or capture from.
	if err := s.server.SetOption(id, "remain-on-exit", "on"); err != nil {
		return "", fmt.Errorf("spawn: enabling remain-on-exit for %s: %w", id, err)
	}

	pid, err := s.server.PanePID(id)
	if err != nil {
		pid = 0 // recorded as unknown; registry treats PID 0 as dead
	}

	rec := registry.Record{
		AgentID:     id,
		PID:         pid,
		ParentID:    req.ParentID,
		Depth:       req.Depth,
		ProjectPath: req.Project,
		Mode:        req.Mode,
		Ephemeral:   req.Ephemeral,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.registry.Register(rec); err != nil {
		return "", fmt.Errorf("spawn: registering %s: %w", id, err)
	}

	return id, nil
}

// ListAlive delegates to the registry's reconciled agent listing.
func (s *Spawner) ListAlive() ([]registry.Record, error) {
	return s.registry.ListAlive()
}

// Kill sends SIGTERM to the agent's pane process. It does not delete
// the agent's inbox — ownership of mail across restarts is ambiguous,
// so cleanup is left to inbox pruning policy rather than kill.
func (s *Spawner) Kill(id string) error {
	if err := s.server.SignalPane(id, syscall.SIGTERM); err != nil {
		return fmt.Errorf("spawn: killing %s: %w", id, err)
	}
	return nil
}

func allocateID() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return "aleph-" + hex.EncodeToString(buf[:]), nil
}
