// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// RenderBanner writes the transient-failure banner spec.md §7 calls
// for ("a transient banner at the bottom of the UI, plus a log entry")
// to w. termenv detects the terminal's actual color profile so the
// banner degrades to plain, escape-free text when stderr isn't a
// color-capable terminal (piped output, a dumb CI log) instead of
// emitting raw ANSI codes nobody can read.
func RenderBanner(w io.Writer, message string) {
	profile := termenv.NewOutput(w).EnvColorProfile()
	banner := profile.String(fmt.Sprintf(" ! %s ", message)).
		Foreground(profile.Color("15")).
		Background(profile.Color("1")).
		Bold()
	fmt.Fprintln(w, banner.String())
}
