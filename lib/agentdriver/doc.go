// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentdriver defines how Aleph runs an AI agent process and
// reads its output as a stream of structured events.
//
//   - Driver, Process and DriverConfig: the interfaces an agent backend
//     implements to start its process and parse its output into events.
//
//   - Event and its typed payloads (tool calls and results, responses,
//     metrics, system and error events, raw output): the parsed form of
//     the agent's output.
//
//   - SessionLogWriter: JSONL writer for those events, one object per
//     line.
//
// The only backend is the Claude Code stream-json driver in
// lib/agentdriver/claudecode; lib/harness starts it and pumps its
// events.
package agentdriver
