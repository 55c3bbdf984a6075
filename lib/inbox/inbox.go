// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package inbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aleph-agents/aleph/lib/fsutil"
	"github.com/aleph-agents/aleph/lib/message"
	"github.com/aleph-agents/aleph/lib/quarantine"
	"github.com/aleph-agents/aleph/lib/ulid"
)

// lockTimeout bounds how long Prune waits for a recipient's inbox
// lock before giving up; prune is a maintenance operation and should
// never block message delivery indefinitely.
const lockTimeout = 5 * time.Second

// Draft is the caller-supplied content for a new message; Store fills
// in MessageID and Timestamp.
type Draft struct {
	From     string
	To       string
	Channel  string
	Summary  string
	Priority message.Priority
	Body     string
}

// Policy governs which read messages Prune is allowed to delete.
type Policy struct {
	OlderThan time.Duration // zero means no age filter
	MaxCount  int           // zero means no count filter
}

// Store manages mail directories rooted at a single "inbox" directory
// containing one subdirectory per recipient AgentID.
type Store struct {
	root       string
	quarantine *quarantine.Store
}

// New returns a Store rooted at the given inbox directory (typically
// "<home>/inbox"), quarantining malformed files it encounters under
// the "inbox" component of q.
func New(root string, q *quarantine.Store) *Store {
	return &Store{root: root, quarantine: q}
}

func (s *Store) recipientDir(recipient string) string {
	return filepath.Join(s.root, recipient)
}

func (s *Store) lockPath(recipient string) string {
	return filepath.Join(s.root, recipient+".lock")
}

// Deliver allocates a ULID, writes "inbox/<recipient>/<id>.md"
// atomically, and returns the allocated id. No lock is needed: the
// filename is guaranteed unique.
func (s *Store) Deliver(recipient string, draft Draft) (string, error) {
	dir := s.recipientDir(recipient)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("inbox: creating %s: %w", dir, err)
	}

	id := ulid.New()
	m := &message.Message{
		From:      draft.From,
		To:        draft.To,
		Channel:   draft.Channel,
		Summary:   draft.Summary,
		Priority:  draft.Priority,
		Timestamp: time.Now().UTC(),
		MessageID: id,
		Body:      draft.Body,
	}

	data, err := m.Serialize()
	if err != nil {
		return "", fmt.Errorf("inbox: encoding message: %w", err)
	}

	path := filepath.Join(dir, id+".md")
	if err := fsutil.AtomicWrite(path, data, 0644); err != nil {
		return "", fmt.Errorf("inbox: delivering to %s: %w", recipient, err)
	}

	return id, nil
}

// ListUnread returns message summaries for every message in the
// recipient's inbox that has no ".read" sidecar, ordered by
// (priority desc, timestamp asc, message_id asc).
//
// Files that fail to parse are quarantined and skipped rather than
// failing the whole listing.
func (s *Store) ListUnread(recipient string) ([]message.Summary, error) {
	dir := s.recipientDir(recipient)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("inbox: listing %s: %w", dir, err)
	}

	var summaries []message.Summary
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".md") {
			continue
		}
		id := strings.TrimSuffix(name, ".md")

		if _, err := os.Stat(filepath.Join(dir, id+".read")); err == nil {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			// Deleted between ReadDir and ReadFile (e.g. by a
			// concurrent prune) is not a failure worth reporting.
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("inbox: reading %s: %w", path, err)
		}

		m, err := message.Parse(data)
		if err != nil {
			if s.quarantine != nil {
				if _, qerr := s.quarantine.Quarantine("inbox", data, err); qerr == nil {
					os.Remove(path)
				}
			}
			continue
		}

		text := m.Summary
		if text == "" {
			text = message.PlainTextSummary(m.Body, 200)
		}

		summaries = append(summaries, message.Summary{
			MessageID: m.MessageID,
			From:      m.From,
			Text:      text,
			Priority:  m.Priority,
			Timestamp: m.Timestamp,
		})
	}

	sort.Sort(message.ByListOrder(summaries))
	return summaries, nil
}

// MarkRead creates the "<id>.read" sidecar atomically. Idempotent: no
// error if the sidecar already exists.
func (s *Store) MarkRead(recipient, messageID string) error {
	dir := s.recipientDir(recipient)
	sidecar := filepath.Join(dir, messageID+".read")

	if _, err := os.Stat(sidecar); err == nil {
		return nil
	}

	if err := fsutil.AtomicWrite(sidecar, nil, 0644); err != nil {
		return fmt.Errorf("inbox: marking %s read in %s: %w", messageID, recipient, err)
	}
	return nil
}

// Prune deletes read messages matching policy, holding the
// recipient's exclusive lock for the duration so a concurrent listing
// never observes a half-pruned directory. Delivery does not take this
// lock, so a delivery landing mid-prune is simply invisible to this
// pass and picked up by the next one.
func (s *Store) Prune(recipient string, policy Policy) error {
	lock, err := fsutil.ExclusiveLock(s.lockPath(recipient), lockTimeout)
	if err != nil {
		return fmt.Errorf("inbox: locking %s for prune: %w", recipient, err)
	}
	defer lock.Unlock()

	dir := s.recipientDir(recipient)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inbox: listing %s: %w", dir, err)
	}

	type candidate struct {
		id    string
		mtime time.Time
	}
	var candidates []candidate
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".md") {
			continue
		}
		id := strings.TrimSuffix(name, ".md")

		if _, err := os.Stat(filepath.Join(dir, id+".read")); errors.Is(err, os.ErrNotExist) {
			continue // unread messages are never pruned
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{id: id, mtime: info.ModTime()})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].mtime.Before(candidates[j].mtime)
	})

	now := time.Now()
	toDelete := make(map[string]bool)

	if policy.OlderThan > 0 {
		for _, c := range candidates {
			if now.Sub(c.mtime) >= policy.OlderThan {
				toDelete[c.id] = true
			}
		}
	}

	if policy.MaxCount > 0 && len(candidates) > policy.MaxCount {
		excess := len(candidates) - policy.MaxCount
		for _, c := range candidates[:excess] {
			toDelete[c.id] = true
		}
	}

	var archived [][]byte
	for id := range toDelete {
		if data, err := os.ReadFile(filepath.Join(dir, id+".md")); err == nil {
			archived = append(archived, data)
		}
	}

	if err := s.appendArchive(recipient, archived); err != nil {
		return err
	}

	for id := range toDelete {
		os.Remove(filepath.Join(dir, id+".md"))
		os.Remove(filepath.Join(dir, id+".read"))
	}

	return nil
}
