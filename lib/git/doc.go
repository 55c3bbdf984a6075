// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI for the home
// directory's auto-commit history: staging and committing changes
// under "~/.aleph/" without ever pushing.
//
// All commands target a specific repository directory via "-C",
// injected automatically by every Repository method.
package git
