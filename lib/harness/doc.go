// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package harness runs the lifecycle of a single agent process: it
// starts the underlying conversational-agent runtime via an
// agentdriver.Driver, pumps its structured event stream through the
// hook bus and permission arbiter, wakes it with unread mail via the
// push dispatcher, and performs session-start/session-end bookkeeping.
//
// This is the in-process analogue of the reference system's
// agentdriver.Run: same event-pump/message-pump shape, but the
// "message pump" here polls the filesystem inbox instead of a network
// transport.
//
// Hook dispatch against the tool-call event stream in this package is
// observational: PreToolUse/PostToolUse fire after Claude Code has
// already decided to run the tool, so they can add context or record
// audit trail but cannot veto a call. Actual blocking enforcement
// happens out of process, through Claude Code's own hook-subprocess
// protocol talking to the permission arbiter before the tool runs.
package harness
