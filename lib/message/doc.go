// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package message defines the on-disk message file format shared by
// the inbox store and channel registry: YAML frontmatter delimited by
// "---" lines, followed by a markdown body.
//
// Readers must tolerate unknown frontmatter fields (forward
// compatibility as the format grows), which is why [Parse] decodes
// into a struct with only the fields this version understands rather
// than validating against a fixed key set.
package message
