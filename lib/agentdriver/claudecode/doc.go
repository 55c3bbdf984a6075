// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package claudecode implements agentdriver.Driver by shelling out to
// the "claude" CLI in print mode with stream-json output, the one
// concrete conversational-agent runtime Aleph wraps in this
// implementation. Other runtimes (Codex, Gemini) would implement the
// same interface as sibling packages; the harness only depends on
// agentdriver.Driver, never on this package directly.
package claudecode
