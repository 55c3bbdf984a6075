// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/aleph-agents/aleph/lib/permission"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("25")).
			Padding(0, 1)

	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("242")).Italic(true)
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)
)

// PermissionPrompter renders each pending permission.Request as a
// standalone bubbletea program and blocks until the user answers.
// One instance is shared across a session's whole lifetime; requests
// are already serialized one-at-a-time per agent by the arbiter, so
// no locking is needed here.
type PermissionPrompter struct{}

// NewPermissionPrompter returns a prompter with no state of its own.
func NewPermissionPrompter() *PermissionPrompter {
	return &PermissionPrompter{}
}

// Prompt implements hookrpc.PromptFunc. It always resolves req before
// returning — if stdin isn't an interactive terminal to begin with, or
// the terminal program itself fails to run, the request is denied
// rather than left hanging forever waiting on a keypress nobody can
// send.
func (p *PermissionPrompter) Prompt(agentID string, req *permission.Request) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		req.Resolve(permission.ResolutionDeny, "no interactive terminal available to prompt for approval")
		return
	}

	model := promptModel{agentID: agentID, req: req}
	program := tea.NewProgram(model)
	if _, err := program.Run(); err != nil {
		req.Resolve(permission.ResolutionDeny, fmt.Sprintf("permission prompt failed: %v", err))
	}
}

type promptModel struct {
	agentID string
	req     *permission.Request
}

func (m promptModel) Init() tea.Cmd {
	return nil
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.String() {
	case "y", "Y":
		m.req.Resolve(permission.ResolutionAllow, "")
		return m, tea.Quit
	case "n", "N", "esc":
		m.req.Resolve(permission.ResolutionDeny, "user rejected")
		return m, tea.Quit
	case "ctrl+c":
		m.req.Resolve(permission.ResolutionDeny, "interrupted")
		return m, tea.Quit
	}
	return m, nil
}

func (m promptModel) View() string {
	var b strings.Builder
	fmt.Fprintln(&b, bannerStyle.Render(fmt.Sprintf(" %s wants to run %s ", m.agentID, m.req.ToolName)))
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, labelStyle.Render("classification: ")+string(m.req.Classification))

	if m.req.Diff != "" {
		fmt.Fprintln(&b)
		fmt.Fprint(&b, highlightDiff(m.req.Diff))
	} else if m.req.Arguments != "" {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, labelStyle.Render("arguments: ")+m.req.Arguments)
	}

	fmt.Fprintln(&b)
	fmt.Fprint(&b, helpStyle.Render("[y] allow  [n] deny  [ctrl+c] interrupt"))

	return borderStyle.Render(b.String())
}

// highlightDiff renders a unified diff with chroma's diff lexer,
// falling back to the plain text if highlighting fails (e.g. an
// unregistered terminal color profile).
func highlightDiff(diff string) string {
	var b strings.Builder
	if err := quick.Highlight(&b, diff, "diff", "terminal256", "monokai"); err != nil {
		return diff
	}
	return b.String()
}
