package harness

import "time"

// TestCase is a named, ordered list of steps against a fixed set of
// components (spec §4.2). Built with the fluent StepBuilder rather than
// constructed directly.
type TestCase struct {
	ID    string
	Name  string
	Steps []*Step
}

// StepBuilder accumulates steps for one TestCase. Each With* method appends
// a step and returns the builder for chaining, mirroring the fluent
// registration style tarsy's pkg/api server.Set* wiring methods use.
type StepBuilder struct {
	tc *TestCase
}

// NewTestCase starts a StepBuilder for a test case named name.
func NewTestCase(name string) *StepBuilder {
	return &StepBuilder{tc: &TestCase{ID: generateID("tc"), Name: name}}
}

// Build finalizes and returns the accumulated TestCase.
func (b *StepBuilder) Build() *TestCase {
	return b.tc
}

// action appends an inline Phase-2 step that runs fn when its turn comes.
func (b *StepBuilder) action(component string, fn func(ctx *HandlerContext) error) *StepBuilder {
	s := &Step{
		ID:         generateID("step"),
		TestCaseID: b.tc.ID,
		Mode:       ModeAction,
		Component:  component,
		Run:        fn,
	}
	b.tc.Steps = append(b.tc.Steps, s)
	return b
}

// hook appends a Phase-1 step that registers handlers against component,
// matching inbound messages of messageType (empty matches everything),
// optionally persisting across test cases (an `on*` step) rather than being
// cleared after this test case (a one-shot `wait*`'s companion hook).
func (b *StepBuilder) hook(component, messageType string, persistent bool, handlers ...Handler) *StepBuilder {
	s := &Step{
		ID:          generateID("step"),
		TestCaseID:  b.tc.ID,
		Mode:        ModeHook,
		Component:   component,
		MessageType: messageType,
		Handlers:    handlers,
		Persistent:  persistent,
	}
	b.tc.Steps = append(b.tc.Steps, s)
	return b
}

// wait appends a Phase-2 step that blocks until a hook matching messageType
// resolves or timeout elapses (default 5s per spec §4.2 if timeout is zero).
func (b *StepBuilder) wait(component, messageType string, timeout time.Duration, handlers ...Handler) *StepBuilder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &Step{
		ID:          generateID("step"),
		TestCaseID:  b.tc.ID,
		Mode:        ModeWait,
		Component:   component,
		MessageType: messageType,
		Handlers:    handlers,
		Timeout:     timeout,
	}
	b.tc.Steps = append(b.tc.Steps, s)
	return b
}

// Do appends a generic inline action step.
func (b *StepBuilder) Do(component string, fn func(ctx *HandlerContext) error) *StepBuilder {
	return b.action(component, fn)
}

// lastStep returns the most recently appended step, or nil for an empty
// test case — used by the fluent Match/WithTraceID/WithLinkID modifiers
// below, which narrow the step just added.
func (b *StepBuilder) lastStep() *Step {
	if n := len(b.tc.Steps); n > 0 {
		return b.tc.Steps[n-1]
	}
	return nil
}

// Match replaces the last step's default messageType-equality predicate
// with fn, e.g. protocols/http.MessageTypeMatcher's path-template match
// (spec §4.5's `createMessageTypeMatcher` option).
func (b *StepBuilder) Match(fn func(*Message) bool) *StepBuilder {
	if s := b.lastStep(); s != nil {
		s.Match = fn
	}
	return b
}

// WithTraceID narrows the last step's match to require an equal TraceID
// (spec §4.5's "if a traceId is provided at the step...").
func (b *StepBuilder) WithTraceID(id string) *StepBuilder {
	if s := b.lastStep(); s != nil {
		s.TraceID = id
	}
	return b
}

// WithLinkID narrows the last step's match to the connection currently
// bound to id (spec §4.6's linkId filter).
func (b *StepBuilder) WithLinkID(id string) *StepBuilder {
	if s := b.lastStep(); s != nil {
		s.LinkID = id
	}
	return b
}

// OnRequest registers a persistent request-matching hook against a mock/proxy
// sync server (spec §4.5's `onRequest`).
func (b *StepBuilder) OnRequest(component, messageType string, handlers ...Handler) *StepBuilder {
	return b.hook(component, messageType, true, handlers...)
}

// WaitRequest registers and awaits a one-shot request match with strict
// ordering semantics (spec §4.5's `waitRequest`).
func (b *StepBuilder) WaitRequest(component, messageType string, timeout time.Duration, handlers ...Handler) *StepBuilder {
	return b.wait(component, messageType, timeout, handlers...)
}

// OnEvent registers a persistent event-matching hook against an async
// client/server (spec §4.6's `onEvent`/`onMessage`).
func (b *StepBuilder) OnEvent(component, messageType string, handlers ...Handler) *StepBuilder {
	return b.hook(component, messageType, true, handlers...)
}

// WaitEvent registers and awaits a one-shot event match (spec §4.6's
// `waitEvent`/`waitMessage`).
func (b *StepBuilder) WaitEvent(component, messageType string, timeout time.Duration, handlers ...Handler) *StepBuilder {
	return b.wait(component, messageType, timeout, handlers...)
}

// OnResponse attaches handlers to the hook a matching earlier `request`
// step resolves, persisting across responses on the same connection (spec
// §4.5/§4.6's `onResponse`). messageType must equal the originating
// request's messageType.
func (b *StepBuilder) OnResponse(component, messageType string, handlers ...Handler) *StepBuilder {
	return b.hook(component, messageType, true, handlers...)
}

// WaitResponse awaits the response to an earlier `request` step of the same
// messageType, one-shot (spec's `waitResponse`).
func (b *StepBuilder) WaitResponse(component, messageType string, timeout time.Duration, handlers ...Handler) *StepBuilder {
	return b.wait(component, messageType, timeout, handlers...)
}

// OnConnection registers a persistent hook against an async server that
// fires when a connection is accepted, optionally narrowed with
// WithLinkID (spec §4.6's `onConnection`).
func (b *StepBuilder) OnConnection(component string, handlers ...Handler) *StepBuilder {
	return b.hook(component, connectionOpened, true, handlers...)
}

// WaitConnection awaits the next accepted connection, one-shot (spec's
// `waitConnection`).
func (b *StepBuilder) WaitConnection(component string, timeout time.Duration, handlers ...Handler) *StepBuilder {
	return b.wait(component, connectionOpened, timeout, handlers...)
}

// OnDisconnect registers a persistent hook against an async server or
// client that fires when a connection closes, optionally narrowed with
// WithLinkID (spec §4.6's `onDisconnect`).
func (b *StepBuilder) OnDisconnect(component string, handlers ...Handler) *StepBuilder {
	return b.hook(component, connectionClosed, true, handlers...)
}

// WaitDisconnect awaits the next connection close, one-shot (spec's
// `waitDisconnect`).
func (b *StepBuilder) WaitDisconnect(component string, timeout time.Duration, handlers ...Handler) *StepBuilder {
	return b.wait(component, connectionClosed, timeout, handlers...)
}
