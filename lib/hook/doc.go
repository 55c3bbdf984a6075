// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package hook implements the event bus that lets out-of-band
// concerns — new mail, the permission arbiter, session bookkeeping —
// contribute to an agent's conversation without racing the agent's
// own turn.
//
// Each named event (PreToolUse, PostToolUse, SessionStart, Stop) has
// an ordered chain of handlers. [Bus.Dispatch] runs a chain
// sequentially and serializes dispatch per agent: while one handler
// is running for a given agent, no other handler for that same agent
// runs, though other agents' chains proceed independently. This
// mirrors the exit-code-as-decision protocol used by the underlying
// agent runtime's own hook mechanism — deny is a first-class decision
// value here rather than a process exit code, since the bus lives
// in-process rather than shelling out per event.
package hook
