// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package hookrpc exposes a running harness's permission arbiter and
// hook bus over a per-agent Unix socket, using the same one-request-
// per-connection CBOR protocol as the reference system's service
// sockets.
//
// The underlying agent runtime runs its own hook subprocess before
// executing a tool (Claude Code's PreToolUse/PostToolUse hooks); that
// subprocess is a separate short-lived process with no access to the
// harness's in-memory state. hookrpc is the bridge: the hook
// subprocess (see cmd/aleph's "hooks" mode) dials the socket, asks
// "may this tool run", and blocks until the harness — possibly after
// prompting a human — answers. This is what makes permission gating
// in Aleph actually block a tool call, as opposed to the harness's own
// event-stream observation, which only ever runs after the runtime
// has already decided to execute the tool.
package hookrpc
