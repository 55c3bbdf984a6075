// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for Aleph
// binaries. It covers the raw I/O that happens outside the structured
// logger:
//
//   - Fatal error reporting to stderr when the logger may not be
//     initialized (pre-logger).
//   - Process exit after an unrecoverable error in main().
//
// cmd/aleph's main calls Fatal for errors that carry no exit code of
// their own.
package process
