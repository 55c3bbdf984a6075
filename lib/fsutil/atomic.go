// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCrossDevice is returned by AtomicWrite when the rename would cross
// a filesystem boundary. Rename is only atomic within one filesystem;
// callers hitting this should write into the same directory tree as
// the target rather than a different mount.
var ErrCrossDevice = errors.New("fsutil: atomic write target is on a different device")

// AtomicWrite writes data to path by creating a temp file in the same
// directory, fsyncing its contents, and renaming it over path. The
// rename is atomic on the local filesystem: readers of path always see
// either the old complete contents or the new complete contents, never
// a partial write.
//
// The temp file is named path + ".tmp.<pid>.<nonce>" so concurrent
// writers to different paths (or repeated writers to the same path)
// never collide on the temp name. mode sets the permission bits of the
// final file.
func AtomicWrite(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpPath := fmt.Sprintf("%s.tmp.%d.%s", path, os.Getpid(), nonce())

	tmpFile, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, mode)
	if err != nil {
		return fmt.Errorf("fsutil: creating temp file for %s: %w", path, err)
	}

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("fsutil: writing temp file for %s: %w", path, err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("fsutil: fsyncing temp file for %s: %w", path, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("fsutil: closing temp file for %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		if linkErr, ok := err.(*os.LinkError); ok && isCrossDevice(linkErr) {
			return fmt.Errorf("fsutil: renaming %s: %w", path, ErrCrossDevice)
		}
		return fmt.Errorf("fsutil: renaming temp file to %s: %w", path, err)
	}

	// Best-effort: fsync the parent directory so the rename itself is
	// durable across a crash, not just the file contents. Not fatal if
	// the directory can't be opened (e.g. permission oddities in tests).
	if dirFile, err := os.Open(dir); err == nil {
		dirFile.Sync()
		dirFile.Close()
	}

	success = true
	return nil
}
