// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package inbox implements per-agent mail directories: delivery,
// unread listing, mark-read, and pruning.
//
// Delivery is lock-free — a ULID filename cannot collide with a
// concurrent writer, so [Deliver] never contends. Pruning is the one
// operation that mutates the directory listing in a way a concurrent
// reader could observe half-done, so [Prune] alone takes the
// recipient's exclusive lock; delivery may interleave with a running
// prune and the listing is simply eventually consistent, matching the
// data model's ownership rules.
package inbox
