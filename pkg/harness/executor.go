package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ComponentRegistry resolves a step's component name to the BaseComponent
// driving its hook registry, so the executor can stay protocol-agnostic.
type ComponentRegistry interface {
	Component(name string) (*BaseComponent, bool)
}

// StepResult records the outcome of a single step for the recorder/reporter
// (spec §4.9).
type StepResult struct {
	StepID      string
	Component   string
	Mode        StepMode
	MessageType string
	TraceID     string
	Request     *Message
	Response    *Message
	Err         error
	Started     time.Time
	Duration    time.Duration
}

// Executor runs one TestCase's steps through the three phases spec §4.3
// defines: register every hook- and wait-mode step's hook first, then execute steps in
// order (inline actions run, wait steps block), then clear non-persistent
// hooks.
type Executor struct {
	Registry ComponentRegistry
	Reporter Reporter
	Logger   *slog.Logger
	FailFast bool
}

// Run executes tc and returns one StepResult per step, in step order.
// Phase 2 stops early (skipping remaining steps) if FailFast is set and a
// step errors; Phase 3 always runs regardless.
func (e *Executor) Run(ctx context.Context, tc *TestCase) ([]StepResult, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Phase 1: register every hook- and wait-mode step's Hook before any step
	// runs (spec §4.3), so a fast producer can't race ahead of a consumer's
	// registration — a request step's response can resolve a waitResponse's
	// hook before Phase 2 even reaches it, which is exactly what the
	// strict-ordering check below is watching for.
	hooksByStep := make(map[string]*Hook, len(tc.Steps))
	for _, s := range tc.Steps {
		if s.Mode != ModeHook && s.Mode != ModeWait {
			continue
		}
		comp, ok := e.Registry.Component(s.Component)
		if !ok {
			return nil, fmt.Errorf("harness: unknown component %q", s.Component)
		}
		h := newHook(s, matcherFor(s), s.Persistent, s.Mode == ModeWait)
		comp.registerHook(h)
		hooksByStep[s.ID] = h
	}

	results := make([]StepResult, 0, len(tc.Steps))
	failed := false

	for _, s := range tc.Steps {
		if e.FailFast && failed {
			break
		}
		start := time.Now()
		var err error
		var hctx *HandlerContext

		switch s.Mode {
		case ModeHook:
			// Already registered in Phase 1; nothing to do at its turn.
		case ModeAction:
			hctx, err = e.runAction(ctx, s)
		case ModeWait:
			hctx, err = e.runWait(ctx, s, hooksByStep[s.ID])
		}

		res := StepResult{
			StepID:      s.ID,
			Component:   s.Component,
			Mode:        s.Mode,
			MessageType: s.MessageType,
			TraceID:     s.TraceID,
			Err:         err,
			Started:     start,
			Duration:    time.Since(start),
		}
		if hctx != nil {
			res.Request = hctx.Request
			res.Response = hctx.Response
		}
		results = append(results, res)
		if e.Reporter != nil {
			e.Reporter.OnStepComplete(res)
		}
		if err != nil {
			failed = true
			logger.Warn("step failed", "step", s.ID, "component", s.Component, "error", err)
		}
	}

	// Phase 3: always clear non-persistent hooks, win or lose, so the next
	// test case in the scenario starts from a clean slate.
	seen := make(map[string]bool)
	for _, s := range tc.Steps {
		if seen[s.Component] {
			continue
		}
		seen[s.Component] = true
		if comp, ok := e.Registry.Component(s.Component); ok {
			comp.clearHooks()
		}
	}

	var outErr error
	if failed {
		outErr = fmt.Errorf("harness: test case %q had failing steps", tc.Name)
	}
	return results, outErr
}

func (e *Executor) runAction(ctx context.Context, s *Step) (*HandlerContext, error) {
	hctx := &HandlerContext{Component: s.Component}
	if s.Run == nil {
		return hctx, nil
	}
	err := s.Run(hctx)
	return hctx, err
}

func (e *Executor) runWait(ctx context.Context, s *Step, h *Hook) (*HandlerContext, error) {
	comp, ok := e.Registry.Component(s.Component)
	if !ok {
		return nil, fmt.Errorf("harness: unknown component %q", s.Component)
	}
	if h == nil {
		return nil, ErrHookNotFound
	}

	if h.Resolved() {
		// The hook was registered in Phase 1, ahead of this step's turn; a
		// match already arrived before we started awaiting it, so strict
		// ordering is violated (spec §4.3/§4.8).
		return nil, ErrStrictOrdering
	}
	if comp.ResponseGate != nil && s.MessageType != "" && !comp.ResponseGate(s.MessageType) {
		return nil, ErrNoMatchingRequest
	}
	defer comp.removeHook(h.ID)

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	msg, err := h.cell.await(ctx, timeout)
	if err != nil {
		return nil, err
	}

	hctx := &HandlerContext{Hook: h, Component: s.Component, Response: msg}
	result := executeHandlers(hctx, s.Handlers, msg)
	return hctx, result.Err
}

// matcherFor builds the IsMatch predicate a step's hook uses (spec §4.4's
// createHookMatcher, §4.5/§4.6's "messageType equality"). A step with a
// custom Match predicate (e.g. protocols/http.MessageTypeMatcher's path
// template) uses that; otherwise the default is plain Type equality, with
// an empty MessageType matching everything. A non-empty TraceID narrows
// either case to a single correlated message. LinkID filtering is not part
// of this predicate — it depends on connection identity, which the async
// server applies separately against the matched message (see
// AsyncServer.dispatch).
func matcherFor(s *Step) func(*Message) bool {
	base := s.Match
	if base == nil {
		msgType := s.MessageType
		base = func(m *Message) bool {
			return msgType == "" || m.Type == msgType
		}
	}
	if s.TraceID == "" {
		return base
	}
	traceID := s.TraceID
	return func(m *Message) bool {
		return base(m) && m.TraceID == traceID
	}
}
