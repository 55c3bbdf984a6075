// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestInit_CreatesRepository(t *testing.T) {
	dir := t.TempDir()
	repo := NewRepository(dir)
	ctx := context.Background()

	if err := repo.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !repo.IsRepository(ctx) {
		t.Error("expected directory to be a git repository after Init")
	}
}

func TestInit_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	repo := NewRepository(dir)
	ctx := context.Background()

	if err := repo.Init(ctx); err != nil {
		t.Fatalf("first Init failed: %v", err)
	}
	if err := repo.Init(ctx); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}
}

func TestCommitAll_NoOpWithoutChanges(t *testing.T) {
	dir := t.TempDir()
	repo := NewRepository(dir)
	ctx := context.Background()

	if err := repo.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := repo.CommitAll(ctx, "nothing to see"); err != nil {
		t.Fatalf("CommitAll on a clean tree should be a no-op, got: %v", err)
	}
}

func TestCommitAll_CommitsPendingChanges(t *testing.T) {
	dir := t.TempDir()
	repo := NewRepository(dir)
	ctx := context.Background()

	if err := repo.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if _, err := repo.Run(ctx, "config", "user.email", "aleph@example.invalid"); err != nil {
		t.Fatalf("configuring commit identity failed: %v", err)
	}
	if _, err := repo.Run(ctx, "config", "user.name", "Aleph"); err != nil {
		t.Fatalf("configuring commit identity failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "memory.md"), []byte("hello"), 0644); err != nil {
		t.Fatalf("writing file failed: %v", err)
	}

	changed, err := repo.HasChanges(ctx)
	if err != nil {
		t.Fatalf("HasChanges failed: %v", err)
	}
	if !changed {
		t.Fatal("expected HasChanges to report a dirty tree")
	}

	if err := repo.CommitAll(ctx, "auto-commit"); err != nil {
		t.Fatalf("CommitAll failed: %v", err)
	}

	changed, err = repo.HasChanges(ctx)
	if err != nil {
		t.Fatalf("HasChanges failed: %v", err)
	}
	if changed {
		t.Error("expected clean tree after commit")
	}
}
