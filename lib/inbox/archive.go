// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package inbox

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// archivePath is the cold-storage file a recipient's pruned messages
// are appended to before their ".md"/".read" files are removed. It
// never participates in ListUnread's ".md" scan.
func (s *Store) archivePath(recipient string) string {
	return filepath.Join(s.recipientDir(recipient), "archive.jsonl.zst")
}

// appendArchive writes each entry as its own zstd frame appended to
// the recipient's archive file, so a later decoder can stream frames
// back out without holding the whole history in memory. Called while
// Prune already holds the recipient's exclusive lock.
func (s *Store) appendArchive(recipient string, entries [][]byte) error {
	if len(entries) == 0 {
		return nil
	}

	path := s.archivePath(recipient)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("inbox: opening archive %s: %w", path, err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("inbox: creating archive encoder: %w", err)
	}
	for _, data := range entries {
		if _, err := enc.Write(data); err != nil {
			enc.Close()
			return fmt.Errorf("inbox: writing archive entry: %w", err)
		}
		if _, err := enc.Write([]byte("\n")); err != nil {
			enc.Close()
			return fmt.Errorf("inbox: writing archive separator: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("inbox: closing archive encoder: %w", err)
	}
	return nil
}
