// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ErrLockContended is returned by ExclusiveLock when the lock is not
// acquired before the timeout elapses.
var ErrLockContended = errors.New("fsutil: lock contended")

// Lock holds an advisory whole-file exclusive lock (flock(2)). The
// lock is released by Unlock, or automatically by the kernel when the
// holding process exits, whichever comes first — flock locks are
// attached to the open file description, not the process, so they
// cannot be left dangling by a crash.
type Lock struct {
	file *os.File
}

// ExclusiveLock acquires a whole-file advisory lock on path, creating
// the file if it does not exist. It polls at a fixed interval until
// the lock is acquired or timeout elapses, returning ErrLockContended
// in the latter case.
//
// The lock file itself carries no data; multiple components may lock
// distinct paths concurrently, but a single path is a serialization
// point for whoever holds it.
func ExclusiveLock(path string, timeout time.Duration) (*Lock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("fsutil: opening lock file %s: %w", path, err)
	}

	deadline := time.Now().Add(timeout)
	const pollInterval = 10 * time.Millisecond

	for {
		err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &Lock{file: file}, nil
		}
		if err != unix.EWOULDBLOCK {
			file.Close()
			return nil, fmt.Errorf("fsutil: flock %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			file.Close()
			return nil, fmt.Errorf("fsutil: locking %s: %w", path, ErrLockContended)
		}
		time.Sleep(pollInterval)
	}
}

// SharedLock acquires a whole-file advisory shared lock on path,
// creating the file if it does not exist. Multiple holders may hold a
// shared lock concurrently; it excludes only ExclusiveLock holders.
// Used for reading the channel subscribers log without blocking other
// readers, while still excluding an in-progress append.
func SharedLock(path string, timeout time.Duration) (*Lock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("fsutil: opening lock file %s: %w", path, err)
	}

	deadline := time.Now().Add(timeout)
	const pollInterval = 10 * time.Millisecond

	for {
		err := unix.Flock(int(file.Fd()), unix.LOCK_SH|unix.LOCK_NB)
		if err == nil {
			return &Lock{file: file}, nil
		}
		if err != unix.EWOULDBLOCK {
			file.Close()
			return nil, fmt.Errorf("fsutil: flock %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			file.Close()
			return nil, fmt.Errorf("fsutil: locking %s: %w", path, ErrLockContended)
		}
		time.Sleep(pollInterval)
	}
}

// Unlock releases the lock and closes the underlying file descriptor.
// Safe to call once; calling it again is a no-op.
func (l *Lock) Unlock() error {
	if l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("fsutil: unlocking: %w", err)
	}
	return closeErr
}
