// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package fsutil

import "time"

// reconcileInterval bounds how stale a Watcher's view of a directory
// can be when inotify events are lost or coalesced. 200ms matches the
// watch latency budget in the delivery scenarios this package serves.
const reconcileInterval = 200 * time.Millisecond

// reconcileLoop fires a notification on a fixed interval regardless of
// kernel activity, so a watch installed after a change (or one that
// missed a coalesced event) still converges.
func (w *Watcher) reconcileLoop() {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.notify()
		}
	}
}
