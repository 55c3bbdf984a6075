// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// PlainTextSummary walks body's markdown AST and concatenates its text
// nodes, collapsing whitespace, to produce a one-line preview for
// messages whose frontmatter omits an explicit summary. Truncated to
// maxLen runes if positive; pass 0 for no truncation.
func PlainTextSummary(body string, maxLen int) string {
	source := []byte(body)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var b strings.Builder
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := n.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
			b.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})

	summary := strings.Join(strings.Fields(b.String()), " ")
	runes := []rune(summary)
	if maxLen > 0 && len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return summary
}
