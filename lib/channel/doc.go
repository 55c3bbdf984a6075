// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel implements named pub/sub topics backed by an
// append-only subscriber log and a bounded broadcast history.
//
// Membership is the fold of every subscribe/unsubscribe event ever
// appended to "channels/<name>/subscribers" — there is no separate
// membership table to keep in sync. A subscribe racing a broadcast
// may or may not be observed by that broadcast; both outcomes are
// valid, matching the tie-break rule in the data model.
package channel
