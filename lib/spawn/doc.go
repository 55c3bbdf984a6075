// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package spawn launches subagents into terminal-multiplexer windows,
// enforcing the configured depth limit and recording each launch in
// the agent registry.
//
// Spawn returns as soon as the window is created; it never waits for
// the launched process to become ready. The initial prompt reaches
// the new agent as its first user-turn, written by the launched
// process itself on startup, not by the spawner.
package spawn
