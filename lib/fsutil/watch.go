// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Watcher delivers "something changed" notifications for a directory's
// immediate children. Consumers must always re-scan the directory on
// notification rather than trust that a specific file caused it —
// events are coalesced and the periodic reconciliation poll fires with
// no corresponding kernel event at all.
type Watcher struct {
	events chan struct{}
	stop   chan struct{}
	fd     int
}

// WatchDir starts watching path for child creation, deletion, and
// rename. Returns a Watcher whose Events channel receives a value
// (dropping duplicates when the consumer is slow) on every kernel
// notification and, as a fallback for events lost under load or
// missed by a watch installed after the fact, at least once every
// reconcile interval regardless of kernel activity.
//
// Call Close when done to release the inotify file descriptor and stop
// the background goroutine.
func WatchDir(path string) (*Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("fsutil: inotify_init1: %w", err)
	}

	_, err = unix.InotifyAddWatch(fd, path, unix.IN_CREATE|unix.IN_DELETE|unix.IN_MOVED_TO|unix.IN_MOVED_FROM)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("fsutil: inotify_add_watch on %s: %w", path, err)
	}

	w := &Watcher{
		events: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		fd:     fd,
	}

	go w.readLoop()
	go w.reconcileLoop()

	return w, nil
}

// Events returns the notification channel. Receiving a value means
// "list the directory again"; the channel never tells the consumer
// what changed.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Close stops the watcher and releases its inotify file descriptor.
// Safe to call more than once.
func (w *Watcher) Close() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
	}
}

// notify delivers a non-blocking, coalescing signal on the events
// channel: if a notification is already pending and unread, a second
// one is dropped rather than queued.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}

// readLoop polls the inotify fd with a bounded timeout so it remains
// responsive to Close without burning CPU on a tight loop.
func (w *Watcher) readLoop() {
	defer unix.Close(w.fd)

	buffer := make([]byte, 4096)
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		pollDescriptors := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
		count, err := unix.Poll(pollDescriptors, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if count == 0 {
			continue // timeout, check stop
		}

		n, err := unix.Read(w.fd, buffer)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return
		}
		if n > 0 {
			w.notify()
		}
	}
}
