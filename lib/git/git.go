// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/aleph-agents/aleph/lib/fsutil"
)

const lockTimeout = 10 * time.Second

// Repository represents a git repository at a specific directory. All
// operations target this directory via "git -C <dir>".
type Repository struct {
	dir      string
	lockPath string
}

// NewRepository returns a Repository targeting the given directory,
// serializing all commands against a lock file inside it. Concurrent
// agents auto-committing under the same home directory take turns
// rather than racing git's own index lock.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir, lockPath: dir + "/.git-aleph.lock"}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository under an
// exclusive lock and returns stdout. Stderr is captured separately
// and included in error messages on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	lock, err := fsutil.ExclusiveLock(r.lockPath, lockTimeout)
	if err != nil {
		return "", fmt.Errorf("git: locking %s: %w", r.dir, err)
	}
	defer lock.Unlock()

	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// IsRepository reports whether the directory is already a git
// repository (has a ".git" entry, worktree or otherwise).
func (r *Repository) IsRepository(ctx context.Context) bool {
	_, err := r.Run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// Init initializes a new repository if one does not already exist.
func (r *Repository) Init(ctx context.Context) error {
	if r.IsRepository(ctx) {
		return nil
	}
	_, err := r.Run(ctx, "init")
	return err
}

// HasChanges reports whether the working tree has anything to commit.
func (r *Repository) HasChanges(ctx context.Context) (bool, error) {
	out, err := r.Run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// CommitAll stages every change under the repository and commits with
// the given message. A no-op (returns nil, nil effect) if there is
// nothing to commit.
func (r *Repository) CommitAll(ctx context.Context, message string) error {
	changed, err := r.HasChanges(ctx)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if _, err := r.Run(ctx, "add", "-A"); err != nil {
		return err
	}
	_, err = r.Run(ctx, "commit", "-m", message)
	return err
}
