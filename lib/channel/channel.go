// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aleph-agents/aleph/lib/fsutil"
	"github.com/aleph-agents/aleph/lib/inbox"
	"github.com/aleph-agents/aleph/lib/message"
)

const lockTimeout = 5 * time.Second

// eventKind is one line of the append-only subscribers log.
type eventKind string

const (
	eventSubscribe   eventKind = "subscribe"
	eventUnsubscribe eventKind = "unsubscribe"
)

// HistoryEntry is one line of "history.jsonl", used for late-joiner
// catch-up.
type HistoryEntry struct {
	Sender    string           `json:"sender"`
	Channel   string           `json:"channel"`
	Summary   string           `json:"summary"`
	Body      string           `json:"body"`
	Priority  message.Priority `json:"priority"`
	Timestamp time.Time        `json:"timestamp"`
}

// BroadcastResult reports fan-out outcome. Partial delivery failure
// never aborts a broadcast; failures are collected here instead.
type BroadcastResult struct {
	Delivered []string
	Failed    map[string]error
}

// Registry manages named channels rooted at a single "channels"
// directory, delivering broadcasts through an inbox.Store.
type Registry struct {
	root         string
	inbox        *inbox.Store
	historyLimit int
}

// New returns a Registry rooted at the given channels directory
// (typically "<home>/channels"). historyLimit bounds how many
// broadcast entries "history.jsonl" retains per channel; zero means
// unbounded.
func New(root string, inboxStore *inbox.Store, historyLimit int) *Registry {
	return &Registry{root: root, inbox: inboxStore, historyLimit: historyLimit}
}

func (r *Registry) channelDir(name string) string {
	return filepath.Join(r.root, name)
}

func (r *Registry) subscribersPath(name string) string {
	return filepath.Join(r.channelDir(name), "subscribers")
}

func (r *Registry) historyPath(name string) string {
	return filepath.Join(r.channelDir(name), "history.jsonl")
}

func (r *Registry) lockPath(name string) string {
	return filepath.Join(r.channelDir(name), ".lock")
}

// Subscribe appends a subscribe event under an exclusive lock.
// Idempotent: if the agent is already a member, no new event is
// appended.
func (r *Registry) Subscribe(agentID, channelName string) error {
	return r.appendEvent(agentID, channelName, eventSubscribe)
}

// Unsubscribe appends an unsubscribe event; it takes effect at the
// next fan-out read.
func (r *Registry) Unsubscribe(agentID, channelName string) error {
	return r.appendEvent(agentID, channelName, eventUnsubscribe)
}

func (r *Registry) appendEvent(agentID, channelName string, kind eventKind) error {
	dir := r.channelDir(channelName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("channel: creating %s: %w", dir, err)
	}

	lock, err := fsutil.ExclusiveLock(r.lockPath(channelName), lockTimeout)
	if err != nil {
		return fmt.Errorf("channel: locking %s: %w", channelName, err)
	}
	defer lock.Unlock()

	members, err := r.readMembership(channelName)
	if err != nil {
		return err
	}

	isMember := members[agentID]
	if kind == eventSubscribe && isMember {
		return nil
	}
	if kind == eventUnsubscribe && !isMember {
		return nil
	}

	line := fmt.Sprintf("%s %s %s\n", kind, agentID, time.Now().UTC().Format(time.RFC3339Nano))
	f, err := os.OpenFile(r.subscribersPath(channelName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("channel: opening subscribers log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("channel: appending to subscribers log: %w", err)
	}
	return f.Sync()
}

// readMembership folds the subscribers log into a membership set.
// Caller must hold at least a shared lock, or the exclusive lock
// already held by appendEvent.
func (r *Registry) readMembership(channelName string) (map[string]bool, error) {
	path := r.subscribersPath(channelName)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("channel: reading subscribers log: %w", err)
	}
	defer f.Close()

	members := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch eventKind(fields[0]) {
		case eventSubscribe:
			members[fields[1]] = true
		case eventUnsubscribe:
			delete(members, fields[1])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("channel: scanning subscribers log: %w", err)
	}
	return members, nil
}

// Membership returns the current subscriber set under a shared lock.
// A channel that has never been subscribed to has an empty set.
func (r *Registry) Membership(channelName string) ([]string, error) {
	if _, err := os.Stat(r.channelDir(channelName)); os.IsNotExist(err) {
		return []string{}, nil
	}

	lock, err := fsutil.SharedLock(r.lockPath(channelName), lockTimeout)
	if err != nil {
		return nil, fmt.Errorf("channel: locking %s: %w", channelName, err)
	}
	defer lock.Unlock()

	members, err := r.readMembership(channelName)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out, nil
}

// Broadcast folds current membership under a shared lock, then
// delivers to every subscriber except sender via inbox.Deliver, and
// appends an entry to history.jsonl. Delivery failures for individual
// subscribers are collected in the result rather than aborting the
// broadcast.
func (r *Registry) Broadcast(sender, channelName, summary, body string, priority message.Priority) (BroadcastResult, error) {
	dir := r.channelDir(channelName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return BroadcastResult{}, fmt.Errorf("channel: creating %s: %w", dir, err)
	}

	lock, err := fsutil.SharedLock(r.lockPath(channelName), lockTimeout)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("channel: locking %s: %w", channelName, err)
	}
	members, err := r.readMembership(channelName)
	lock.Unlock()
	if err != nil {
		return BroadcastResult{}, err
	}

	result := BroadcastResult{Failed: map[string]error{}}
	for member := range members {
		if member == sender {
			continue
		}
		if _, err := r.inbox.Deliver(member, inbox.Draft{
			From:     sender,
			Channel:  channelName,
			Summary:  summary,
			Priority: priority,
			Body:     body,
		}); err != nil {
			result.Failed[member] = err
			continue
		}
		result.Delivered = append(result.Delivered, member)
	}

	if err := r.appendHistory(channelName, HistoryEntry{
		Sender:    sender,
		Channel:   channelName,
		Summary:   summary,
		Body:      body,
		Priority:  priority,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return result, fmt.Errorf("channel: appending history: %w", err)
	}

	return result, nil
}

func (r *Registry) appendHistory(channelName string, entry HistoryEntry) error {
	lock, err := fsutil.ExclusiveLock(r.lockPath(channelName), lockTimeout)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	path := r.historyPath(channelName)
	lines, err := readLines(path)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}
	lines = append(lines, string(encoded))

	if r.historyLimit > 0 && len(lines) > r.historyLimit {
		lines = lines[len(lines)-r.historyLimit:]
	}

	return fsutil.AtomicWrite(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// History returns the most recent broadcast entries for late-joiner
// catch-up, oldest first.
func (r *Registry) History(channelName string) ([]HistoryEntry, error) {
	lock, err := fsutil.SharedLock(r.lockPath(channelName), lockTimeout)
	if err != nil {
		return nil, fmt.Errorf("channel: locking %s: %w", channelName, err)
	}
	defer lock.Unlock()

	lines, err := readLines(r.historyPath(channelName))
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(lines))
	for _, line := range lines {
		var entry HistoryEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
