// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package quarantine

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/aleph-agents/aleph/lib/fsutil"
)

// domainKey separates quarantine content hashes from any other
// BLAKE3 usage elsewhere in the codebase, so identical bytes hashed
// for a different purpose never collide with a quarantine digest.
var domainKey = [32]byte{
	'a', 'l', 'e', 'p', 'h', '.', 'q', 'u', 'a', 'r', 'a', 'n', 't', 'i', 'n', 'e',
}

// Store quarantines malformed files under a root directory, one
// subdirectory per reporting component.
type Store struct {
	root string
}

// New returns a Store rooted at the given quarantine directory
// (typically "<home>/quarantine").
func New(root string) *Store {
	return &Store{root: root}
}

// Record describes one quarantined file.
type Record struct {
	Component string
	Hash      string
	Path      string
	Reason    string
	QuarantinedAt time.Time
}

// Quarantine writes data to "<root>/<component>/<hash>.bad" along with
// a "<hash>.reason" sidecar describing why it was rejected. Writing
// the same bytes for the same component twice is idempotent: the hash
// is the filename, so the second call simply overwrites identical
// content and refreshes the reason.
func (s *Store) Quarantine(component string, data []byte, reason error) (Record, error) {
	if component == "" {
		return Record{}, fmt.Errorf("quarantine: component must not be empty")
	}
	if reason == nil {
		return Record{}, fmt.Errorf("quarantine: reason must not be nil")
	}

	dir := filepath.Join(s.root, component)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Record{}, fmt.Errorf("quarantine: creating %s: %w", dir, err)
	}

	hasher, err := blake3.NewKeyed(domainKey[:])
	if err != nil {
		panic("quarantine: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	digest := hex.EncodeToString(hasher.Sum(nil))

	dataPath := filepath.Join(dir, digest+".bad")
	reasonPath := filepath.Join(dir, digest+".reason")

	if err := fsutil.AtomicWrite(dataPath, data, 0644); err != nil {
		return Record{}, fmt.Errorf("quarantine: writing %s: %w", dataPath, err)
	}
	if err := fsutil.AtomicWrite(reasonPath, []byte(reason.Error()+"\n"), 0644); err != nil {
		return Record{}, fmt.Errorf("quarantine: writing %s: %w", reasonPath, err)
	}

	return Record{
		Component: component,
		Hash:      digest,
		Path:      dataPath,
		Reason:    reason.Error(),
	}, nil
}

// List returns the records currently quarantined for a component.
func (s *Store) List(component string) ([]Record, error) {
	dir := filepath.Join(s.root, component)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quarantine: listing %s: %w", dir, err)
	}

	records := make(map[string]*Record)
	for _, entry := range entries {
		name := entry.Name()
		ext := filepath.Ext(name)
		hash := name[:len(name)-len(ext)]

		rec := records[hash]
		if rec == nil {
			rec = &Record{Component: component, Hash: hash}
			records[hash] = rec
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		switch ext {
		case ".bad":
			rec.Path = filepath.Join(dir, name)
			rec.QuarantinedAt = info.ModTime().UTC()
		case ".reason":
			reasonBytes, err := os.ReadFile(filepath.Join(dir, name))
			if err == nil {
				rec.Reason = strings.TrimSuffix(string(reasonBytes), "\n")
			}
		}
	}

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.Path != "" {
			out = append(out, *rec)
		}
	}
	return out, nil
}
