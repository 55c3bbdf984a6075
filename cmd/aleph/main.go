// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

// aleph is the harness binary: it launches one interactive agent
// session backed by Claude Code, wires it to the coordination fabric
// under ALEPH_HOME (inbox, channels, task board, registry, permission
// arbiter), and runs until the session ends.
//
// A second, internal mode ("aleph hooks <event>") is invoked by Claude
// Code itself as a PreToolUse/PostToolUse hook subprocess; it forwards
// the decision request to the harness's hookrpc socket rather than
// deciding anything locally.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/aleph-agents/aleph/lib/process"
	"github.com/aleph-agents/aleph/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "hooks":
			return runHooks(args[1:])
		case "doctor":
			return runDoctor(args[1:])
		case "list":
			return runList(args[1:])
		case "kill":
			return runKill(args[1:])
		case "attach":
			return runAttach(args[1:])
		case "--version":
			version.Print("aleph")
			return nil
		}
	}
	return runLaunch(args)
}

// exitError pairs a message with the exit code spec.md §6 assigns it:
// 1 for user error (bad flags, missing home directory), 2 for
// internal error (the agent process itself failed).
type exitError struct {
	err  error
	code int
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) ExitCode() int { return e.code }
func (e *exitError) Unwrap() error { return e.err }

func userError(format string, args ...any) error {
	return &exitError{err: fmt.Errorf(format, args...), code: 1}
}

func internalError(err error) error {
	return &exitError{err: err, code: 2}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprint(os.Stderr, `aleph — persistent multi-agent coordination harness.

Usage:
  aleph [flags]              launch a new interactive session
  aleph doctor                check ALEPH_HOME for common problems
  aleph list                  list live agents from the registry
  aleph kill <id>              terminate a spawned agent
  aleph attach <id>            print a spawned agent's tmux pane output
  aleph hooks <event>          (internal) Claude Code hook subprocess entry point

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
