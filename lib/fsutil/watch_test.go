// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchDir_NotifiesOnCreate(t *testing.T) {
	dir := t.TempDir()

	w, err := WatchDir(dir)
	if err != nil {
		t.Fatalf("WatchDir failed: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "new.md"), []byte("x"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	select {
	case <-w.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for create notification")
	}
}

func TestWatchDir_ReconcilesWithoutKernelEvent(t *testing.T) {
	dir := t.TempDir()

	// Write the file BEFORE the watch starts: no inotify event will ever
	// fire for it, so only the periodic reconciliation poll surfaces it.
	if err := os.WriteFile(filepath.Join(dir, "existing.md"), []byte("x"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	w, err := WatchDir(dir)
	if err != nil {
		t.Fatalf("WatchDir failed: %v", err)
	}
	defer w.Close()

	select {
	case <-w.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reconciliation notification")
	}
}

func TestWatchDir_CloseStopsNotifications(t *testing.T) {
	dir := t.TempDir()

	w, err := WatchDir(dir)
	if err != nil {
		t.Fatalf("WatchDir failed: %v", err)
	}
	w.Close()
	w.Close() // idempotent

	if err := os.WriteFile(filepath.Join(dir, "new.md"), []byte("x"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	// Drain whatever is buffered, then confirm nothing further arrives.
drain:
	for {
		select {
		case <-w.Events():
		case <-time.After(250 * time.Millisecond):
			break drain
		}
	}
	select {
	case <-w.Events():
		t.Fatal("notification arrived after Close")
	case <-time.After(300 * time.Millisecond):
	}
}
