// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the per-agent lifecycle around a
// runtime session: startup handoff injection, session-end summary
// generation, and auto-committing changes under the home directory.
//
// Session-end summary generation is best-effort and bounded: if the
// agent cannot produce a summary turn in time (typically because its
// context window is already exhausted), a stub summary assembled from
// registry metadata is written instead, so every session leaves a
// trace in memory/sessions/ regardless of how it ended.
package session
