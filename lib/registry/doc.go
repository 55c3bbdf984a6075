// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry tracks live agents by id: one JSON row per agent
// under "registry/<agent_id>.json", plus a heartbeat file whose mtime
// records the agent's last heartbeat.
//
// A row's owning process is its only writer while it lives. A row
// counts as alive while its PID is alive; once the PID is dead and the
// heartbeat has also gone silent past the configured threshold,
// ListAlive deletes the row and its heartbeat file.
package registry
