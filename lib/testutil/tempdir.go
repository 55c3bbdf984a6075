// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Aleph packages.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SocketDir creates a temporary directory suitable for Unix domain sockets.
//
// Unix domain sockets have a 108-byte path limit (sun_path in sockaddr_un),
// and t.TempDir() paths can exceed this limit on some systems. This
// function creates a short-named directory directly in /tmp instead.
//
// The directory is automatically removed when the test completes.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "aleph-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}

// TempHome builds a throwaway ~/.aleph tree under t.TempDir() with the
// standard subdirectory layout (inbox, channels, registry, tasks,
// memory/sessions, quarantine, locks, scratch) already created. Returns the home
// root; callers point their component under test at it directly rather
// than reading it from config.
func TempHome(t *testing.T) string {
	t.Helper()

	home := filepath.Join(t.TempDir(), "aleph-home")
	subdirs := []string{
		"inbox",
		"channels",
		"registry",
		"tasks",
		filepath.Join("memory", "sessions"),
		"quarantine",
		"locks",
		"scratch",
	}
	for _, dir := range subdirs {
		if err := os.MkdirAll(filepath.Join(home, dir), 0755); err != nil {
			t.Fatalf("creating %s under temp home: %v", dir, err)
		}
	}
	return home
}
