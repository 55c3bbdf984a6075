// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/aleph-agents/aleph/lib/registry"
	"github.com/aleph-agents/aleph/lib/spawn"
	"github.com/aleph-agents/aleph/lib/tmux"
)

// newSpawner resolves config and wires the tmux server, registry, and
// spawner used by list/kill/attach — the same trio runLaunch's
// runDetached path builds, minus the binary path a read-only or
// signal-only operation never needs to launch anything itself.
func newSpawner(home string) (*spawn.Spawner, *tmux.Server, error) {
	cfg, err := resolveConfig(home)
	if err != nil {
		return nil, nil, userError("%v", err)
	}
	server := tmux.NewServer(cfg.Agent.TmuxSocket, "/dev/null")
	reg := registry.New(cfg.Paths.Registry, cfg.Agent.StaleAfter)
	return spawn.New(server, reg, "", cfg.Agent.MaxDepth), server, nil
}

// runList implements "aleph list": the CLI surface for the spawner's
// list_alive() operation (spec.md §4.8), which until now only the
// doctor command's registry check exercised indirectly.
func runList(args []string) error {
	flagSet := pflag.NewFlagSet("aleph list", pflag.ContinueOnError)
	var home string
	flagSet.StringVar(&home, "home", "", "Aleph home directory (default: $ALEPH_HOME or ~/.aleph)")
	if err := flagSet.Parse(args); err != nil {
		return userError("parsing flags: %v", err)
	}

	spawner, server, err := newSpawner(home)
	if err != nil {
		return err
	}

	records, err := spawner.ListAlive()
	if err != nil {
		return internalError(fmt.Errorf("listing agents: %w", err))
	}

	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no live agents")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-16s %-8s %-6s %-8s %-10s %s\n", "ID", "PID", "DEPTH", "MODE", "SESSION", "PROJECT")
	for _, rec := range records {
		session := "inline"
		if server.HasSession(rec.AgentID) {
			session = "tmux"
		}
		fmt.Fprintf(os.Stdout, "%-16s %-8d %-6d %-8s %-10s %s\n",
			rec.AgentID, rec.PID, rec.Depth, rec.Mode, session, rec.ProjectPath)
	}
	return nil
}

// runKill implements "aleph kill <id>": the CLI surface for the
// spawner's kill() operation. It signals the pane process and, if the
// process was running inside a dedicated tmux window rather than an
// inline foreground session, also tears down that window — a bare
// SIGTERM leaves a dead, remain-on-exit pane sitting in the server
// otherwise.
func runKill(args []string) error {
	flagSet := pflag.NewFlagSet("aleph kill", pflag.ContinueOnError)
	var home string
	flagSet.StringVar(&home, "home", "", "Aleph home directory (default: $ALEPH_HOME or ~/.aleph)")
	if err := flagSet.Parse(args); err != nil {
		return userError("parsing flags: %v", err)
	}
	if flagSet.NArg() != 1 {
		return userError("usage: aleph kill <agent-id>")
	}
	id := flagSet.Arg(0)

	spawner, server, err := newSpawner(home)
	if err != nil {
		return err
	}

	if err := spawner.Kill(id); err != nil {
		return internalError(fmt.Errorf("killing %s: %w", id, err))
	}
	if server.HasSession(id) {
		if err := server.KillSession(id); err != nil {
			return internalError(fmt.Errorf("tearing down session %s: %w", id, err))
		}
	}
	return nil
}

// runAttach implements "aleph attach <id>": prints the tail of a
// detached agent's tmux pane, the fastest way to see what a spawned
// subagent is doing without taking over its terminal with a real
// `tmux -S <socket> attach`. maxLines mirrors CapturePane's own
// 0-means-unlimited convention.
func runAttach(args []string) error {
	flagSet := pflag.NewFlagSet("aleph attach", pflag.ContinueOnError)
	var home string
	var maxLines int
	flagSet.StringVar(&home, "home", "", "Aleph home directory (default: $ALEPH_HOME or ~/.aleph)")
	flagSet.IntVar(&maxLines, "lines", 200, "number of trailing lines to print (0 for the full scrollback)")
	if err := flagSet.Parse(args); err != nil {
		return userError("parsing flags: %v", err)
	}
	if flagSet.NArg() != 1 {
		return userError("usage: aleph attach <agent-id>")
	}
	id := flagSet.Arg(0)

	_, server, err := newSpawner(home)
	if err != nil {
		return err
	}

	if !server.HasSession(id) {
		return userError("%s has no tmux session (it may be running inline, or has already exited)", id)
	}

	output, err := server.CapturePane(id, maxLines)
	if err != nil {
		return internalError(fmt.Errorf("capturing pane for %s: %w", id, err))
	}
	fmt.Fprint(os.Stdout, output)
	return nil
}
