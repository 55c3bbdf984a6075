// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// Package fsutil provides the filesystem primitives every other Aleph
// component builds on: atomic writes, advisory exclusive locks, and a
// directory watcher.
//
// [AtomicWrite] writes a file by creating a temp sibling, fsyncing it,
// and renaming it over the target — the rename is atomic on the local
// filesystem, so readers never observe a partially written file.
//
// [ExclusiveLock] takes a whole-file advisory lock (flock(2)) with a
// bounded wait, returning [ErrLockContended] on timeout. Locks release
// automatically on process exit regardless of whether Unlock was
// called, since flock locks are tied to the open file descriptor.
//
// [WatchDir] produces a channel of "something changed" notifications
// for a directory's immediate children, backed by inotify with a
// periodic reconciliation poll as a fallback for events the kernel
// notification coalesces or drops. Consumers must always re-scan the
// directory on notification rather than trust the event contents.
package fsutil
