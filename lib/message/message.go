// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Priority is the delivery priority declared in a message's frontmatter.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

func (p Priority) valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	default:
		return false
	}
}

// rank orders priorities for sorting: high first, then normal, then low.
func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// frontmatter is the YAML header block. Field order here controls
// serialization order; unknown keys present in a parsed document are
// simply dropped on reserialization, per the tolerate-unknown-fields
// contract — round-tripping is only guaranteed for fields this version
// recognizes.
type frontmatter struct {
	From      string   `yaml:"from"`
	To        string   `yaml:"to,omitempty"`
	Channel   string   `yaml:"channel,omitempty"`
	Summary   string   `yaml:"summary"`
	Priority  Priority `yaml:"priority"`
	Timestamp string   `yaml:"timestamp"`
	MessageID string   `yaml:"message_id"`
}

// Message is a parsed mail item: YAML frontmatter plus a markdown body.
type Message struct {
	From      string
	To        string // empty if Channel is set
	Channel   string // empty if To is set
	Summary   string
	Priority  Priority
	Timestamp time.Time
	MessageID string
	Body      string
}

const delimiter = "---\n"

// Parse decodes a message file. Frontmatter is the YAML block between
// the leading and trailing "---" lines; everything after the trailing
// delimiter is the body verbatim.
func Parse(data []byte) (*Message, error) {
	text := string(data)
	if !strings.HasPrefix(text, delimiter) {
		return nil, errors.New("message: missing frontmatter delimiter")
	}
	rest := text[len(delimiter):]
	end := strings.Index(rest, "\n"+delimiter)
	if end < 0 {
		return nil, errors.New("message: unterminated frontmatter block")
	}
	header := rest[:end]
	body := rest[end+len("\n"+delimiter):]
	body = strings.TrimPrefix(body, "\n")

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return nil, fmt.Errorf("message: invalid frontmatter: %w", err)
	}

	if err := validateFrontmatter(fm); err != nil {
		return nil, err
	}

	ts, err := time.Parse(time.RFC3339, fm.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("message: invalid timestamp %q: %w", fm.Timestamp, err)
	}

	return &Message{
		From:      fm.From,
		To:        fm.To,
		Channel:   fm.Channel,
		Summary:   fm.Summary,
		Priority:  fm.Priority,
		Timestamp: ts.UTC(),
		MessageID: fm.MessageID,
		Body:      body,
	}, nil
}

func validateFrontmatter(fm frontmatter) error {
	if fm.From == "" {
		return errors.New("message: missing from")
	}
	if (fm.To == "") == (fm.Channel == "") {
		return errors.New("message: exactly one of to/channel must be set")
	}
	if n := utf8.RuneCountInString(fm.Summary); n > 200 {
		return fmt.Errorf("message: summary exceeds 200 characters (%d)", n)
	}
	if !fm.Priority.valid() {
		return fmt.Errorf("message: invalid priority %q", fm.Priority)
	}
	if fm.MessageID == "" {
		return errors.New("message: missing message_id")
	}
	return nil
}

// Serialize renders the message back to its file form. For a Message
// obtained from Parse, Serialize(m) followed by Parse reproduces equal
// field values (Testable Property 8). Frontmatter keys are always
// written in the same fixed order, so re-serializing a parsed copy of
// Serialize's own output gives the same bytes; a hand-written file can
// still differ from its re-serialization (key order, quoting, dropped
// unknown keys).
func (m *Message) Serialize() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	fm := frontmatter{
		From:      m.From,
		To:        m.To,
		Channel:   m.Channel,
		Summary:   m.Summary,
		Priority:  m.Priority,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
		MessageID: m.MessageID,
	}

	header, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, fmt.Errorf("message: encoding frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(delimiter)
	buf.Write(header)
	buf.WriteString(delimiter)
	buf.WriteString("\n")
	buf.WriteString(m.Body)

	return buf.Bytes(), nil
}

// Validate checks the invariants from the data model independent of
// serialization: exactly one recipient kind, summary length, priority
// enum membership, and a non-empty message id.
func (m *Message) Validate() error {
	return validateFrontmatter(frontmatter{
		From:      m.From,
		To:        m.To,
		Channel:   m.Channel,
		Summary:   m.Summary,
		Priority:  m.Priority,
		Timestamp: m.Timestamp.Format(time.RFC3339),
		MessageID: m.MessageID,
	})
}

// Summary is the projection returned by inbox listings: enough to
// decide whether to open the full message without reading its body.
type Summary struct {
	MessageID string
	From      string
	Text      string
	Priority  Priority
	Timestamp time.Time
}

// ByListOrder sorts summaries by (priority desc, timestamp asc,
// message_id asc), the stable order required of inbox listings.
type ByListOrder []Summary

func (s ByListOrder) Len() int      { return len(s) }
func (s ByListOrder) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s ByListOrder) Less(i, j int) bool {
	if s[i].Priority.rank() != s[j].Priority.rank() {
		return s[i].Priority.rank() < s[j].Priority.rank()
	}
	if !s[i].Timestamp.Equal(s[j].Timestamp) {
		return s[i].Timestamp.Before(s[j].Timestamp)
	}
	return s[i].MessageID < s[j].MessageID
}
