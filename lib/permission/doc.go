// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package permission implements the PreToolUse arbiter: classifying
// tool calls, gating them under the active mode, synthesizing diffs
// for edits, and suspending the calling agent until the UI resolves
// the request.
//
// Requests are single-slot by construction — the hook bus serializes
// dispatch per agent, so two concurrent pending requests for the same
// agent cannot occur. An interrupted turn resolves any pending
// request as deny with reason "interrupted" rather than leaving it to
// time out.
package permission
