// Copyright 2026 The Aleph Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aleph-agents/aleph/lib/agentdriver"
	"github.com/aleph-agents/aleph/lib/config"
	"github.com/aleph-agents/aleph/lib/dispatch"
	"github.com/aleph-agents/aleph/lib/hook"
	"github.com/aleph-agents/aleph/lib/hookrpc"
	"github.com/aleph-agents/aleph/lib/permission"
	"github.com/aleph-agents/aleph/lib/registry"
	"github.com/aleph-agents/aleph/lib/session"
)

// summaryPrompt is injected at session end to ask the agent to write
// its own memory/sessions summary before the process exits.
const summaryPrompt = "Please write a brief summary of this session to memory/sessions/ before finishing, covering what you did and what's left."

// Config describes one agent invocation.
type Config struct {
	AgentID   string
	ParentID  string
	Depth     int
	Project   string
	Mode      permission.Mode
	Ephemeral bool
	Prompt    string
	Home      string // "~/.aleph"

	// HookSocketPath, if non-empty, starts a hookrpc server at this
	// path for the duration of the run and exports it to the agent
	// process as ALEPH_HOOK_SOCKET, so the runtime's own hook
	// subprocess can reach it. Empty disables blocking permission
	// enforcement — the harness still tracks tool calls from its own
	// event stream, but nothing can veto one.
	HookSocketPath string

	HeartbeatInterval time.Duration
	SummaryTimeout    time.Duration
}

// Harness ties one running agent process to the shared coordination
// components: registry, dispatcher, hook bus, permission arbiter, and
// session lifecycle.
type Harness struct {
	driver     agentdriver.Driver
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	hooks      *hook.Bus
	arbiter    *permission.Arbiter
	injector   *Injector
	prompt     hookrpc.PromptFunc
	diff       hookrpc.DiffFunc
	banner     func(message string)
	logger     *slog.Logger

	mu             sync.Mutex
	pendingSummary chan string
}

// New returns a Harness. dispatcher must have been constructed with
// injector as its dispatch.Injector (dispatch.New(inboxStore, injector,
// inboxRoot)) — the injector starts with no backing process and only
// becomes able to write once Run starts the driver process.
func New(driver agentdriver.Driver, reg *registry.Registry, dispatcher *dispatch.Dispatcher, hooks *hook.Bus, arbiter *permission.Arbiter, injector *Injector, logger *slog.Logger) *Harness {
	if logger == nil {
		env, _ := config.LoadEnvOverrides()
		logger = config.NewLogger(env.LogFormat)
	}
	return &Harness{driver: driver, registry: reg, dispatcher: dispatcher, hooks: hooks, arbiter: arbiter, injector: injector, logger: logger}
}

// SetPermissionPrompt installs the callback used to surface an
// interactive permission decision to a human (typically wired to a
// terminal UI) when HookSocketPath is set and a tool call requires
// approval. Must be called before Run.
func (h *Harness) SetPermissionPrompt(prompt hookrpc.PromptFunc) {
	h.prompt = prompt
}

// SetDiffFunc installs the callback used to compute a unified diff
// for edit-classified tool calls surfaced to a permission prompt.
// Must be called before Run.
func (h *Harness) SetDiffFunc(diff hookrpc.DiffFunc) {
	h.diff = diff
}

// SetBannerFunc installs the callback used to surface a transient
// failure (spec.md §7: "a transient banner at the bottom of the UI,
// plus a log entry") directly to a human watching the session, in
// addition to the log entry every such failure already gets. A nil
// banner (the default) means transient failures are logged only.
func (h *Harness) SetBannerFunc(banner func(message string)) {
	h.banner = banner
}

func (h *Harness) warnTransient(message string, args ...any) {
	h.logger.Warn(message, args...)
	if h.banner != nil {
		h.banner(message)
	}
}

// Injector implements dispatch.Injector by writing synthetic user
// turns onto a driver process's stdin. It is constructed before the
// process exists (Dispatcher needs an Injector at construction time)
// and bound to a live process once Run starts one; InjectUserTurn is
// a no-op until then.
type Injector struct {
	mu      sync.Mutex
	process agentdriver.Process
}

// NewInjector returns an unbound Injector.
func NewInjector() *Injector {
	return &Injector{}
}

func (i *Injector) bind(process agentdriver.Process) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.process = process
}

// InjectUserTurn writes text as a newline-terminated line on the
// bound process's stdin. Returns nil without effect if no process is
// bound yet.
func (i *Injector) InjectUserTurn(agentID, text string) error {
	i.mu.Lock()
	process := i.process
	i.mu.Unlock()
	if process == nil {
		return nil
	}
	_, err := fmt.Fprintf(process.Stdin(), "%s\n", text)
	return err
}

// Run starts the agent process, pumps its event stream, keeps the
// registry heartbeat current, wakes it with unread mail via the
// dispatcher, and performs session-start/session-end bookkeeping.
// Returns when the underlying process exits.
func (h *Harness) Run(ctx context.Context, cfg Config) error {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.SummaryTimeout == 0 {
		cfg.SummaryTimeout = 30 * time.Second
	}

	h.arbiter.SetMode(cfg.AgentID, cfg.Mode)

	rec := registry.Record{
		AgentID:     cfg.AgentID,
		PID:         os.Getpid(),
		ParentID:    cfg.ParentID,
		Depth:       cfg.Depth,
		ProjectPath: cfg.Project,
		Mode:        string(cfg.Mode),
		Ephemeral:   cfg.Ephemeral,
		StartedAt:   time.Now().UTC(),
	}
	if err := h.registry.Register(rec); err != nil {
		return fmt.Errorf("harness: registering %s: %w", cfg.AgentID, err)
	}

	lifecycle := session.New(cfg.Home)
	startupContext, err := lifecycle.Startup()
	if err != nil {
		return fmt.Errorf("harness: startup handoff: %w", err)
	}

	prompt := cfg.Prompt
	if startupContext != "" {
		prompt = startupContext + "\n\n" + prompt
	}

	h.dispatcher.OnUserTurnStart(cfg.AgentID)

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go h.heartbeatLoop(heartbeatCtx, cfg.AgentID, cfg.HeartbeatInterval)

	driverConfig := agentdriver.DriverConfig{
		Prompt:           prompt,
		SessionID:        cfg.AgentID,
		WorkingDirectory: cfg.Project,
	}

	if cfg.HookSocketPath != "" {
		hookServer := hookrpc.NewServer(cfg.HookSocketPath, h.arbiter, h.dispatcher, h.hooks, h.prompt, h.diff, h.logger)
		hookCtx, stopHooks := context.WithCancel(ctx)
		hookServerDone := make(chan struct{})
		go func() {
			defer close(hookServerDone)
			if serveErr := hookServer.Serve(hookCtx); serveErr != nil {
				h.warnTransient("hookrpc server exited", "error", serveErr)
			}
		}()
		defer func() { stopHooks(); <-hookServerDone }()
		driverConfig.ExtraEnv = append(driverConfig.ExtraEnv,
			"ALEPH_HOOK_SOCKET="+cfg.HookSocketPath,
			"ALEPH_AGENT_ID="+cfg.AgentID,
		)
	}

	h.logger.Info("starting agent process", "agent_id", cfg.AgentID)
	process, stdout, err := h.driver.Start(ctx, driverConfig)
	if err != nil {
		return fmt.Errorf("harness: starting agent process: %w", err)
	}
	defer stdout.Close()

	h.injector.bind(process)

	events := make(chan agentdriver.Event, 64)
	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		for event := range events {
			h.handleEvent(ctx, cfg.AgentID, event)
		}
	}()

	go func() {
		if parseErr := h.driver.ParseOutput(ctx, stdout, events); parseErr != nil {
			h.logger.Warn("parsing agent output", "error", parseErr)
		}
		close(events)
	}()

	signalChannel := make(chan os.Signal, 2)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		count := 0
		for range signalChannel {
			count++
			if count == 1 {
				h.logger.Info("received signal, interrupting agent", "agent_id", cfg.AgentID)
				h.arbiter.Interrupt(cfg.AgentID)
				if interruptErr := h.driver.Interrupt(process); interruptErr != nil {
					h.logger.Warn("interrupting agent", "error", interruptErr)
				}
			} else {
				h.logger.Info("received second signal, killing agent", "agent_id", cfg.AgentID)
				process.Signal(syscall.SIGKILL)
			}
		}
	}()

	processErr := process.Wait()
	signal.Stop(signalChannel)
	close(signalChannel)
	<-eventsDone

	requestSummary := func(summaryCtx context.Context) (string, error) {
		if err := h.injector.InjectUserTurn(cfg.AgentID, summaryPrompt); err != nil {
			return "", err
		}
		return h.awaitSummary(summaryCtx)
	}
	if processErr != nil {
		// The process already exited; there is nobody left to answer
		// a summary request.
		requestSummary = nil
	}

	if endErr := lifecycle.End(ctx, rec, cfg.AgentID, cfg.Ephemeral, requestSummary); endErr != nil {
		h.logger.Error("session end bookkeeping failed", "agent_id", cfg.AgentID, "error", endErr)
	}

	h.registry.Deregister(cfg.AgentID)

	if processErr != nil {
		return fmt.Errorf("harness: agent process exited: %w", processErr)
	}
	return nil
}

func (h *Harness) heartbeatLoop(ctx context.Context, agentID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.registry.Heartbeat(agentID); err != nil {
				h.warnTransient("heartbeat failed", "agent_id", agentID, "error", err)
			}
		}
	}
}

// handleEvent updates dispatcher/hook-bus bookkeeping for one parsed
// driver event and, on turn boundaries, wakes the agent with unread
// mail if there is any.
func (h *Harness) handleEvent(ctx context.Context, agentID string, event agentdriver.Event) {
	switch event.Type {
	case agentdriver.EventTypeToolCall:
		h.dispatcher.OnToolCallStart(agentID)
		h.hooks.Dispatch(ctx, hook.Event{Kind: hook.PreToolUse, AgentID: agentID, ToolName: event.ToolCall.Name, Arguments: event.ToolCall.Input})

	case agentdriver.EventTypeToolResult:
		// The authoritative PostToolUse additionalContext path runs
		// out of process, through hookrpc: the runtime's own hook
		// subprocess fetches unread mail and returns it directly in
		// its JSON response, which the runtime injects into context
		// itself. This event-stream dispatch is audit-only bookkeeping
		// for the dispatcher's busy/idle state machine.
		h.dispatcher.OnToolCallEnd(agentID)
		h.hooks.Dispatch(ctx, hook.Event{Kind: hook.PostToolUse, AgentID: agentID})

	case agentdriver.EventTypeResponse:
		h.mu.Lock()
		waiter := h.pendingSummary
		h.pendingSummary = nil
		h.mu.Unlock()
		if waiter != nil {
			waiter <- event.Response.Content
			return
		}
		if err := h.dispatcher.HandleTurnComplete(agentID); err != nil {
			h.logger.Warn("handling turn complete", "agent_id", agentID, "error", err)
		}

	case agentdriver.EventTypeMetric:
		h.hooks.Dispatch(ctx, hook.Event{Kind: hook.Stop, AgentID: agentID})
	}
}

func (h *Harness) awaitSummary(ctx context.Context) (string, error) {
	h.mu.Lock()
	ch := make(chan string, 1)
	h.pendingSummary = ch
	h.mu.Unlock()

	select {
	case text := <-ch:
		return text, nil
	case <-ctx.Done():
		h.mu.Lock()
		h.pendingSummary = nil
		h.mu.Unlock()
		return "", ctx.Err()
	}
}
