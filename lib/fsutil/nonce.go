// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os"
	"syscall"

	"github.com/google/uuid"
)

// nonce returns a short random token for disambiguating temp file names
// created by concurrent AtomicWrite calls to the same target path.
func nonce() string {
	return uuid.NewString()[:8]
}

// isCrossDevice reports whether a *os.LinkError wraps EXDEV, meaning
// the rename crossed a filesystem boundary.
func isCrossDevice(err *os.LinkError) bool {
	errno, ok := err.Err.(syscall.Errno)
	return ok && errno == syscall.EXDEV
}
