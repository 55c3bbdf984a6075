// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch chooses how an incoming message is surfaced to its
// recipient: folded into the next PostToolUse result while the agent
// is mid-turn (busy mode), or injected as a synthetic user-turn while
// the agent waits for input (idle mode).
//
// Delivery is at-least-once: a message remains eligible for injection
// until marked read, so a recipient may see the same summary again on
// a later tool call. Readers key off message_id to deduplicate.
package dispatch
