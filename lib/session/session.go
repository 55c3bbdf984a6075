// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aleph-agents/aleph/lib/git"
	"github.com/aleph-agents/aleph/lib/registry"
)

// summaryTimeout bounds how long the end-of-session summary turn is
// given before falling back to a stub summary.
const summaryTimeout = 30 * time.Second

// Lifecycle manages startup and shutdown bookkeeping for one agent's
// home directory.
type Lifecycle struct {
	home string
	repo *git.Repository
}

// New returns a Lifecycle rooted at the given home directory
// (typically "~/.aleph").
func New(home string) *Lifecycle {
	return &Lifecycle{home: home, repo: git.NewRepository(home)}
}

func (l *Lifecycle) handoffPath() string {
	return filepath.Join(l.home, "memory", "handoff.md")
}

func (l *Lifecycle) contextPath() string {
	return filepath.Join(l.home, "memory", "context.md")
}

func (l *Lifecycle) sessionsDir() string {
	return filepath.Join(l.home, "memory", "sessions")
}

// Startup assembles the system context to prepend to the first turn:
// the most recent handoff document (read then deleted — a
// single-writer, single-reader handoff), the recap of the most recent
// session summary, and the standing context file. Sections that don't
// exist are silently omitted.
func (l *Lifecycle) Startup() (string, error) {
	var sections []string

	handoff, err := l.consumeHandoff()
	if err != nil {
		return "", err
	}
	if handoff != "" {
		sections = append(sections, "## Handoff from previous session\n\n"+handoff)
	}

	recap, err := l.mostRecentSessionSummary()
	if err != nil {
		return "", err
	}
	if recap != "" {
		sections = append(sections, "## Recap of the most recent session\n\n"+recap)
	}

	contextDoc, err := readIfExists(l.contextPath())
	if err != nil {
		return "", err
	}
	if contextDoc != "" {
		sections = append(sections, "## Standing context\n\n"+contextDoc)
	}

	return strings.Join(sections, "\n\n"), nil
}

func (l *Lifecycle) consumeHandoff() (string, error) {
	path := l.handoffPath()
	content, err := readIfExists(path)
	if err != nil {
		return "", err
	}
	if content == "" {
		return "", nil
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("session: removing consumed handoff: %w", err)
	}
	return content, nil
}

func (l *Lifecycle) mostRecentSessionSummary() (string, error) {
	entries, err := os.ReadDir(l.sessionsDir())
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: listing %s: %w", l.sessionsDir(), err)
	}
	if len(entries) == 0 {
		return "", nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names) // filenames are date-prefixed, so lexicographic == chronological

	return readIfExists(filepath.Join(l.sessionsDir(), names[len(names)-1]))
}

func readIfExists(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: reading %s: %w", path, err)
	}
	return string(data), nil
}

// SummaryRequester asks the running agent to produce a session
// summary and returns the markdown it wrote, or an error/timeout if
// it could not (e.g. context overflow).
type SummaryRequester func(ctx context.Context) (string, error)

// End writes the session-end summary and auto-commits changes under
// the home directory. Ephemeral sessions skip the summary turn
// entirely — there's no memory continuity to preserve — but still
// auto-commit, since other agents may have left durable state
// alongside this session's activity.
func (l *Lifecycle) End(ctx context.Context, rec registry.Record, agentID string, ephemeral bool, requestSummary SummaryRequester) error {
	if !ephemeral {
		if err := l.writeSummary(ctx, rec, agentID, requestSummary); err != nil {
			return err
		}
	}

	if err := l.repo.Init(ctx); err != nil {
		return fmt.Errorf("session: initializing home repository: %w", err)
	}
	if err := l.repo.CommitAll(ctx, fmt.Sprintf("session %s ended", agentID)); err != nil {
		return fmt.Errorf("session: auto-committing home directory: %w", err)
	}
	return nil
}

func (l *Lifecycle) writeSummary(ctx context.Context, rec registry.Record, agentID string, requestSummary SummaryRequester) error {
	date := time.Now().UTC().Format("2006-01-02")
	path := filepath.Join(l.sessionsDir(), fmt.Sprintf("%s-%s.md", date, agentID))

	if err := os.MkdirAll(l.sessionsDir(), 0755); err != nil {
		return fmt.Errorf("session: creating sessions directory: %w", err)
	}

	var summary string
	if requestSummary != nil {
		summaryCtx, cancel := context.WithTimeout(ctx, summaryTimeout)
		result, err := requestSummary(summaryCtx)
		cancel()
		if err == nil {
			summary = result
		}
	}
	if summary == "" {
		summary = stubSummary(rec, agentID)
	}

	return os.WriteFile(path, []byte(summary), 0644)
}

// stubSummary assembles a minimal summary from registry metadata when
// the agent could not write its own — e.g. its turn failed because
// the context window was already exhausted.
func stubSummary(rec registry.Record, agentID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session summary: %s\n\n", agentID)
	b.WriteString("_Generated automatically; the agent did not produce its own summary._\n\n")
	fmt.Fprintf(&b, "- Project: %s\n", rec.ProjectPath)
	fmt.Fprintf(&b, "- Mode: %s\n", rec.Mode)
	fmt.Fprintf(&b, "- Started: %s\n", rec.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Ended: %s\n", time.Now().UTC().Format(time.RFC3339))
	if rec.ParentID != "" {
		fmt.Fprintf(&b, "- Parent: %s\n", rec.ParentID)
	}
	return b.String()
}
