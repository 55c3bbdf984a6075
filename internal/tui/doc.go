// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui implements the small terminal surfaces the harness binary
// shows a human directly: the permission prompt shown when a mode
// requires approval before a tool call proceeds. It is built on
// bubbletea/lipgloss/chroma the way the reference system's ticket
// browser is, scaled down to the single interaction Aleph needs from a
// terminal UI rather than a full split-pane browser.
package tui
