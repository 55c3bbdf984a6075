// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package ulid generates Universally Unique Lexicographically Sortable
// Identifiers: a 48-bit millisecond Unix timestamp followed by 80 bits
// of randomness, Crockford base32 encoded to a 26-character string.
//
// Lexicographic string sort order matches temporal generation order,
// which is what the inbox store relies on for filenames
// that are both unique and naturally ordered by a directory listing.
//
// Within the same millisecond, the random component increments
// monotonically rather than being re-rolled from scratch, so two IDs
// generated back-to-back in one goroutine never collide and still
// sort correctly relative to each other.
package ulid
