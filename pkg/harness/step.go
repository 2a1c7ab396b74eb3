package harness

import "time"

// StepMode classifies how a step participates in the three-phase executor
// (spec §4.3): action steps run inline during Phase 2, hook steps register a
// handler chain during Phase 1, wait steps block Phase 2 on a pending cell.
type StepMode int

const (
	ModeAction StepMode = iota
	ModeHook
	ModeWait
)

// HandlerType discriminates the kinds of handler a hook chain can run
// (spec §4.4).
type HandlerType int

const (
	HandlerAssert HandlerType = iota
	HandlerTransform
	HandlerProxy
	HandlerMockResponse
	HandlerMockEvent
	HandlerDelay
	HandlerDrop
	HandlerLink
	HandlerDisconnect
)

// HandlerFunc implements one link of a handler chain. It receives the
// current message (possibly already transformed by an earlier handler in
// the chain) and returns the message to pass to the next handler, along
// with an outcome describing any chain-terminating effect.
type HandlerFunc func(ctx *HandlerContext, msg *Message) (*Message, HandlerOutcome, error)

// HandlerContext carries the state a handler needs beyond the message
// itself: the owning hook (for link binding) and the proxy round-trip
// function a "proxy" handler invokes to forward upstream.
type HandlerContext struct {
	Hook       *Hook
	Component  string
	ForwardFn  func(msg *Message) (*Message, error)
	ConnLinkID string

	// Request and Response, when set by an action step's body (e.g.
	// SyncClient.Request, AsyncClient.Send) or by the executor for a wait
	// step's received message, let the recorder capture real traffic
	// payloads instead of bare pass/fail (spec §4.9's Interaction record).
	Request  *Message
	Response *Message
}

// HandlerOutcome records a chain-terminating side effect produced by a
// single handler, consumed by executeHandlers to decide the overall
// terminal/forwarded/dropped disposition of the chain (spec §4.4, §4.5
// step 3).
type HandlerOutcome int

const (
	OutcomeNone HandlerOutcome = iota
	OutcomeTerminal
	OutcomeForwarded
	OutcomeDropped
)

// Handler pairs a HandlerType tag (used for diagnostics/reporting) with its
// executable body.
type Handler struct {
	Type HandlerType
	Fn   HandlerFunc
}

// HandlerResult is the final disposition of running a hook's full handler
// chain against one message.
type HandlerResult struct {
	Message  *Message
	Outcome  HandlerOutcome
	Err      error
}

// executeHandlers runs a hook's chain in order against msg, threading the
// (possibly transformed) message from one handler to the next. It tracks
// whether the chain produced a terminal response (mockResponse/mockEvent),
// performed an explicit proxy forward, or dropped the message outright —
// the tri-state disposition spec.md §4.5 step 3 requires to decide between
// an explicit chain result and the implicit proxy-mode fallback.
func executeHandlers(ctx *HandlerContext, handlers []Handler, msg *Message) HandlerResult {
	current := msg
	for _, h := range handlers {
		next, outcome, err := h.Fn(ctx, current)
		if err != nil {
			return HandlerResult{Message: current, Outcome: OutcomeNone, Err: err}
		}
		if next != nil {
			current = next
		}
		switch outcome {
		case OutcomeDropped:
			return HandlerResult{Message: nil, Outcome: OutcomeDropped}
		case OutcomeTerminal:
			return HandlerResult{Message: current, Outcome: OutcomeTerminal}
		case OutcomeForwarded:
			// Forwarding doesn't end the chain — later transform/assert
			// handlers may still run against the upstream response — but it
			// does record that an explicit forward happened, so the caller
			// doesn't also apply the implicit proxy-mode fallback.
			continue
		}
	}
	if current != msg {
		return HandlerResult{Message: current, Outcome: OutcomeForwarded}
	}
	return HandlerResult{Message: current, Outcome: OutcomeNone}
}

// Delay returns a Handler that sleeps d before passing msg through
// unchanged — grounded on spec.md's `delay` handler semantics.
func Delay(d time.Duration) Handler {
	return Handler{Type: HandlerDelay, Fn: func(_ *HandlerContext, msg *Message) (*Message, HandlerOutcome, error) {
		time.Sleep(d)
		return msg, OutcomeNone, nil
	}}
}

// Drop returns a Handler that terminates the chain with no response,
// modeling spec.md's `drop` handler (silently discard the request/event).
func Drop() Handler {
	return Handler{Type: HandlerDrop, Fn: func(_ *HandlerContext, msg *Message) (*Message, HandlerOutcome, error) {
		return nil, OutcomeDropped, nil
	}}
}

// Assert returns a Handler wrapping a user predicate; a false/failed
// predicate surfaces as an *AssertionError through the chain's err return,
// which the caller records as a failed step without altering the message.
func Assert(stepID string, pred func(*Message) error) Handler {
	return Handler{Type: HandlerAssert, Fn: func(_ *HandlerContext, msg *Message) (*Message, HandlerOutcome, error) {
		if err := pred(msg); err != nil {
			return msg, OutcomeNone, &AssertionError{StepID: stepID, Message: err.Error()}
		}
		return msg, OutcomeNone, nil
	}}
}

// Transform returns a Handler applying fn to rewrite the message in place,
// per spec.md's `transform` handler.
func Transform(fn func(*Message) (*Message, error)) Handler {
	return Handler{Type: HandlerTransform, Fn: func(_ *HandlerContext, msg *Message) (*Message, HandlerOutcome, error) {
		out, err := fn(msg)
		if err != nil {
			return msg, OutcomeNone, err
		}
		return out, OutcomeNone, nil
	}}
}

// MockResponse returns a Handler that replaces the chain output with a
// canned response and ends the chain, per spec.md's `mockResponse`.
func MockResponse(fn func(*Message) (*Message, error)) Handler {
	return Handler{Type: HandlerMockResponse, Fn: func(_ *HandlerContext, msg *Message) (*Message, HandlerOutcome, error) {
		resp, err := fn(msg)
		if err != nil {
			return msg, OutcomeNone, err
		}
		return resp, OutcomeTerminal, nil
	}}
}

// MockResponseJSON is a MockResponse convenience for a fixed, already-encoded
// JSON body (status "200"), the common case for an onRequest step that just
// needs to answer with a canned payload.
func MockResponseJSON(body string) Handler {
	return MockResponse(func(*Message) (*Message, error) {
		return &Message{Type: "200", Payload: []byte(body)}, nil
	})
}

// MockEvent is MockResponse's async-side counterpart: terminates the chain
// by emitting a canned event instead of a request response.
func MockEvent(fn func(*Message) (*Message, error)) Handler {
	return Handler{Type: HandlerMockEvent, Fn: func(_ *HandlerContext, msg *Message) (*Message, HandlerOutcome, error) {
		evt, err := fn(msg)
		if err != nil {
			return msg, OutcomeNone, err
		}
		return evt, OutcomeTerminal, nil
	}}
}

// Proxy returns a Handler that forwards msg upstream via the
// HandlerContext's ForwardFn and replaces the chain's current message with
// the upstream response, per spec.md's `proxy` handler ("the proxy
// transform runs, then the response replaces the chain output").
func Proxy() Handler {
	return Handler{Type: HandlerProxy, Fn: func(ctx *HandlerContext, msg *Message) (*Message, HandlerOutcome, error) {
		if ctx == nil || ctx.ForwardFn == nil {
			return msg, OutcomeNone, ErrProxyMode
		}
		resp, err := ctx.ForwardFn(msg)
		if err != nil {
			return msg, OutcomeNone, &TransportError{Op: "proxy-forward", Err: err}
		}
		return resp, OutcomeForwarded, nil
	}}
}

// Link binds a connection-stable identifier to the owning hook so a later
// step can target it with sendEvent(linkId, ...), per spec.md's `link`
// handler.
func Link(id string) Handler {
	return Handler{Type: HandlerLink, Fn: func(ctx *HandlerContext, msg *Message) (*Message, HandlerOutcome, error) {
		if ctx != nil && ctx.Hook != nil {
			ctx.Hook.BindLink(id)
		}
		return msg, OutcomeNone, nil
	}}
}

// Disconnect closes the owning connection via fn as soon as it runs and
// ends the chain, per spec.md's `disconnect` handler; handlers after it in
// the chain do not run.
func Disconnect(fn func() error) Handler {
	return Handler{Type: HandlerDisconnect, Fn: func(_ *HandlerContext, msg *Message) (*Message, HandlerOutcome, error) {
		if err := fn(); err != nil {
			return msg, OutcomeNone, &TransportError{Op: "disconnect", Err: err}
		}
		return msg, OutcomeTerminal, nil
	}}
}

// Step is one entry in a test case's ordered step list (spec §4.2).
type Step struct {
	ID         string
	TestCaseID string
	Mode       StepMode
	Component  string
	Handlers   []Handler
	Timeout    time.Duration
	Persistent bool

	// MessageType is the default match predicate for a hook/wait step:
	// the inbound message's Type must equal it exactly. Empty means match
	// every message on the component.
	MessageType string
	// TraceID, if set, additionally requires the inbound message's TraceID
	// to equal it, narrowing a waitResponse/waitEvent to one correlated
	// request (spec §4.5's "if a traceId is provided... the matcher
	// additionally equals message.traceId").
	TraceID string
	// LinkID, if set, requires the inbound message to come from the
	// connection currently bound to that link id (spec §4.6's linkId
	// filter on onMessage/onConnection/onDisconnect).
	LinkID string
	// Match, if set, replaces the MessageType-equality default with a
	// protocol-specific predicate — e.g. protocols/http.MessageTypeMatcher's
	// path-template match (spec §4.5's createMessageTypeMatcher option).
	Match func(*Message) bool

	// Run executes an action-mode step inline during Phase 2. Hook/wait
	// steps instead register or await a Hook and leave Run nil.
	Run func(ctx *HandlerContext) error
}
