// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package quarantine isolates malformed on-disk records — such as a
// message file with unparseable frontmatter, which lib/inbox
// quarantines while listing — so that one bad file never blocks
// readers working through the rest of a directory.
//
// Quarantined bytes are content-addressed with a domain-separated
// BLAKE3 keyed hash, which keeps the hashes of different components
// from colliding, so re-quarantining identical bytes from the same
// component is a no-op rather than a pile of duplicates.
package quarantine
