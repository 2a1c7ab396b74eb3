package harness

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// State is a component lifecycle state (spec §3).
type State string

const (
	StateCreated  State = "created"
	StateStarting State = "starting"
	StateStarted  State = "started"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateError    State = "error"
)

// Lifecycle is implemented by every component the scenario drives through
// start/stop. Concrete components (sync client/server, async client/server,
// pub/sub, data source) embed BaseComponent and supply their own doStart/
// doStop via the start/stop funcs passed to NewBaseComponent.
type Lifecycle interface {
	Name() string
	State() State
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// BaseComponent centralizes the state machine and hook registry shared by
// every component kind, grounded on tarsy's queue.WorkerPool start/stop
// guarding (podID/stopOnce/mutex-guarded state) and events.ConnectionManager's
// map-of-hooks pattern.
type BaseComponent struct {
	name   string
	Logger *slog.Logger

	mu    sync.RWMutex
	state State

	doStart func(ctx context.Context) error
	doStop  func(ctx context.Context) error

	hooksMu sync.Mutex
	hooks   []*Hook

	// ResponseGate, when set by a concrete component (SyncClient), lets a
	// wait-mode step (waitResponse) fail fast with ErrNoMatchingRequest when
	// no request was ever sent for its messageType, instead of blocking out
	// the full wait timeout for an event that can never arrive. Hook-mode
	// steps (onResponse) are not checked against it.
	ResponseGate func(msgType string) bool
}

// NewBaseComponent constructs a component in StateCreated. start/stop may be
// nil, in which case the corresponding transition is a no-op beyond the
// state change.
func NewBaseComponent(name string, logger *slog.Logger, start, stop func(ctx context.Context) error) *BaseComponent {
	if logger == nil {
		logger = slog.Default()
	}
	return &BaseComponent{
		name:    name,
		Logger:  logger,
		state:   StateCreated,
		doStart: start,
		doStop:  stop,
	}
}

func (c *BaseComponent) Name() string { return c.name }

func (c *BaseComponent) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Start transitions created|stopped -> starting -> started. Starting an
// already-started component is a no-op; any other state is a LifecycleError.
func (c *BaseComponent) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateStarted:
		c.mu.Unlock()
		return nil
	case StateCreated, StateStopped:
		c.state = StateStarting
	default:
		from := c.state
		c.mu.Unlock()
		return &LifecycleError{Component: c.name, From: from, Attempted: "start", Err: fmt.Errorf("invalid transition")}
	}
	c.mu.Unlock()

	var err error
	if c.doStart != nil {
		err = c.doStart(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateError
		c.Logger.Error("component start failed", "component", c.name, "error", err)
		return err
	}
	c.state = StateStarted
	c.Logger.Info("component started", "component", c.name)
	return nil
}

// Stop transitions started -> stopping -> stopped. Stopping a created or
// already-stopped component is idempotent.
func (c *BaseComponent) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateCreated, StateStopped:
		c.mu.Unlock()
		return nil
	case StateStarted, StateError:
		c.state = StateStopping
	default:
		from := c.state
		c.mu.Unlock()
		return &LifecycleError{Component: c.name, From: from, Attempted: "stop", Err: fmt.Errorf("invalid transition")}
	}
	c.mu.Unlock()

	c.rejectAllHooks(ErrComponentStopped)

	var err error
	if c.doStop != nil {
		err = c.doStop(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateStopped
	if err != nil {
		c.Logger.Error("component stop reported error", "component", c.name, "error", err)
		return err
	}
	c.Logger.Info("component stopped", "component", c.name)
	return nil
}

// registerHook adds a hook to the component's registry. Phase 1 of the
// three-phase executor (spec §4.3) registers every hook- and wait-mode
// step's hook before any step executes.
func (c *BaseComponent) registerHook(h *Hook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks = append(c.hooks, h)
}

// clearHooks drops every non-persistent hook, as Phase 3 does at the end of
// each test case (spec §4.3). Persistent hooks (registered with `on`,
// not `wait`) survive across test cases within the same scenario run.
func (c *BaseComponent) clearHooks() {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	kept := c.hooks[:0]
	for _, h := range c.hooks {
		if h.Persistent {
			kept = append(kept, h)
		}
	}
	c.hooks = kept
}

// removeHook drops a single hook by id, used when a one-shot wait* step's
// hook resolves and should not be considered for subsequent matches.
func (c *BaseComponent) removeHook(id string) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	for i, h := range c.hooks {
		if h.ID == id {
			c.hooks = append(c.hooks[:i], c.hooks[i+1:]...)
			return
		}
	}
}

// findMatchingHook returns the first registered hook whose predicate
// matches msg, in registration order.
func (c *BaseComponent) findMatchingHook(msg *Message) *Hook {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	for _, h := range c.hooks {
		if h.IsMatch(msg) {
			return h
		}
	}
	return nil
}

// findAllMatchingHooks returns every registered hook whose predicate matches
// msg, in registration order — used for broadcast-style dispatch (onEvent
// fan-out to every matching waiter).
func (c *BaseComponent) findAllMatchingHooks(msg *Message) []*Hook {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	var out []*Hook
	for _, h := range c.hooks {
		if h.IsMatch(msg) {
			out = append(out, h)
		}
	}
	return out
}

// findHookByStepID returns the hook registered for a given step, if any.
func (c *BaseComponent) findHookByStepID(stepID string) *Hook {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	for _, h := range c.hooks {
		if h.StepID == stepID {
			return h
		}
	}
	return nil
}

func (c *BaseComponent) rejectAllHooks(err error) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	for _, h := range c.hooks {
		h.mu.Lock()
		cell := h.cell
		h.mu.Unlock()
		if cell != nil {
			cell.reject(err)
		}
	}
}
