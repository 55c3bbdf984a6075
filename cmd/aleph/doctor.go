// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/aleph-agents/aleph/lib/config"
	"github.com/aleph-agents/aleph/lib/fsutil"
	"github.com/aleph-agents/aleph/lib/registry"
	"github.com/aleph-agents/aleph/lib/tmux"
)

// checkStatus is the outcome of one doctor check.
type checkStatus string

const (
	statusOK   checkStatus = "ok"
	statusWarn checkStatus = "warn"
	statusFail checkStatus = "fail"
)

type checkResult struct {
	name   string
	status checkStatus
	detail string
}

// runDoctor is the entry point for "aleph doctor": validates the
// ALEPH_HOME layout, reports stale registry rows, looks for orphaned
// lock files, and verifies the tmux socket is reachable. It exits 1
// (via userError, which main reports at exit code 1) if any check
// fails, matching the reference system's doctor command convention of
// a nonzero exit whenever something needs attention.
func runDoctor(args []string) error {
	flagSet := pflag.NewFlagSet("aleph doctor", pflag.ContinueOnError)
	var home string
	flagSet.StringVar(&home, "home", "", "Aleph home directory (default: $ALEPH_HOME or ~/.aleph)")
	if err := flagSet.Parse(args); err != nil {
		return userError("parsing flags: %v", err)
	}

	cfg, err := resolveConfig(home)
	if err != nil {
		return userError("%v", err)
	}

	var results []checkResult
	results = append(results, checkLayout(cfg.Paths.Home)...)
	results = append(results, checkRegistry(cfg)...)
	results = append(results, checkLockFiles(cfg.Paths.Locks)...)
	results = append(results, checkTmuxSocket(cfg.Agent.TmuxSocket))

	failed := false
	for _, result := range results {
		symbol := "✓"
		if result.status == statusWarn {
			symbol = "!"
		} else if result.status == statusFail {
			symbol = "✗"
			failed = true
		}
		if result.detail != "" {
			fmt.Fprintf(os.Stdout, "%s %-28s %s\n", symbol, result.name, result.detail)
		} else {
			fmt.Fprintf(os.Stdout, "%s %-28s\n", symbol, result.name)
		}
	}

	if failed {
		return userError("one or more checks failed")
	}
	return nil
}

func checkLayout(home string) []checkResult {
	if home == "" {
		return []checkResult{{name: "ALEPH_HOME", status: statusFail, detail: "no home directory configured"}}
	}

	info, err := os.Stat(home)
	if os.IsNotExist(err) {
		return []checkResult{{name: "ALEPH_HOME", status: statusWarn, detail: home + " does not exist yet (created on first launch)"}}
	}
	if err != nil {
		return []checkResult{{name: "ALEPH_HOME", status: statusFail, detail: err.Error()}}
	}
	if !info.IsDir() {
		return []checkResult{{name: "ALEPH_HOME", status: statusFail, detail: home + " is not a directory"}}
	}

	results := []checkResult{{name: "ALEPH_HOME", status: statusOK, detail: home}}

	for _, sub := range []string{"inbox", "channels", "registry", "tasks", "memory/sessions", "quarantine", "locks"} {
		path := filepath.Join(home, sub)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			results = append(results, checkResult{name: sub, status: statusWarn, detail: "missing (created on first launch)"})
		} else if err != nil {
			results = append(results, checkResult{name: sub, status: statusFail, detail: err.Error()})
		} else {
			results = append(results, checkResult{name: sub, status: statusOK})
		}
	}
	return results
}

func checkRegistry(cfg *config.Config) []checkResult {
	reg := registry.New(cfg.Paths.Registry, cfg.Agent.StaleAfter)
	alive, err := reg.ListAlive()
	if err != nil {
		return []checkResult{{name: "registry", status: statusFail, detail: err.Error()}}
	}
	return []checkResult{{name: "registry", status: statusOK, detail: fmt.Sprintf("%d live agent(s)", len(alive))}}
}

func checkLockFiles(locksDir string) []checkResult {
	entries, err := os.ReadDir(locksDir)
	if os.IsNotExist(err) {
		return []checkResult{{name: "lock files", status: statusOK, detail: "none"}}
	}
	if err != nil {
		return []checkResult{{name: "lock files", status: statusFail, detail: err.Error()}}
	}

	var orphaned int
	for _, entry := range entries {
		path := filepath.Join(locksDir, entry.Name())
		lock, err := fsutil.ExclusiveLock(path, 10*time.Millisecond)
		if err != nil {
			continue // held by a live process, not orphaned
		}
		lock.Unlock()
		orphaned++
	}

	if orphaned == 0 {
		return []checkResult{{name: "lock files", status: statusOK, detail: fmt.Sprintf("%d present, none contended", len(entries))}}
	}
	return []checkResult{{name: "lock files", status: statusWarn, detail: fmt.Sprintf("%d uncontended (safe to remove if no session is running)", orphaned)}}
}

// countLines counts non-empty lines in tmux's list-sessions output.
func countLines(output string) int {
	count := 0
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}

func checkTmuxSocket(socketPath string) checkResult {
	if socketPath == "" {
		return checkResult{name: "tmux socket", status: statusWarn, detail: "not configured"}
	}
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return checkResult{name: "tmux socket", status: statusWarn, detail: socketPath + " not started yet (created on first --detach spawn)"}
	}

	server := tmux.NewServer(socketPath, "/dev/null")
	output, err := server.Run("list-sessions")
	if err != nil {
		return checkResult{name: "tmux socket", status: statusFail, detail: err.Error()}
	}
	return checkResult{name: "tmux socket", status: statusOK, detail: fmt.Sprintf("%s (%d session(s))", socketPath, countLines(output))}
}
