// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Aleph packages.
//
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets. This exists because Unix domain sockets have a
// 108-byte path limit (sun_path in sockaddr_un), which t.TempDir() can
// exceed on some systems. The directory is automatically removed when
// the test completes.
//
// [TempHome] builds a throwaway ~/.aleph tree with the standard
// subdirectory layout already created, for components that expect a
// real home directory to operate on.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests need not write that select themselves.
//
// [RequireEventually] polls a condition function until it holds or a
// timeout elapses, for the watch-then-reconcile pattern where a
// filesystem change becomes visible on a bounded but non-deterministic
// delay.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation. Use it instead of time.Now() when tests need unique
// transaction IDs, message ids, or bodies distinguishable across
// concurrent goroutines.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Aleph-internal dependencies.
package testutil
