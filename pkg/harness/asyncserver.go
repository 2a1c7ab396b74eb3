package harness

import (
	"context"
	"log/slog"
)

// connectionOpened and connectionClosed are the synthetic messageTypes
// onConnection/waitConnection and onDisconnect/waitDisconnect steps match
// against (spec §4.6). They're dispatched through the same hook pipeline
// as ordinary messages so connection lifecycle reuses one matching and
// pending-cell mechanism instead of a parallel one.
const (
	connectionOpened = "$connection.opened"
	connectionClosed = "$connection.closed"
)

// AsyncServer is a mock/proxy async server (spec §4.6): it accepts
// connections, wires each one's inbound stream through the hook registry,
// and tracks open connections so a `link` handler's bound id can later be
// targeted by a `sendEvent(linkId, ...)` step.
type AsyncServer struct {
	*BaseComponent
	adapter AsyncServerAdapter
	addr    Address
	conns   *connectionSet
}

// NewAsyncServer constructs an AsyncServer listening on addr via adapter.
func NewAsyncServer(name string, adapter AsyncServerAdapter, addr Address, logger *slog.Logger) *AsyncServer {
	s := &AsyncServer{adapter: adapter, addr: addr, conns: newConnectionSet()}
	s.BaseComponent = NewBaseComponent(name, logger,
		func(ctx context.Context) error {
			adapter.OnConnection(s.handleConnection)
			return adapter.Listen(ctx, addr)
		},
		func(ctx context.Context) error { return adapter.Close(ctx) },
	)
	return s
}

func (s *AsyncServer) handleConnection(conn AsyncConnection, onMessage func(fn func(msg *Message))) {
	s.conns.add(conn)
	s.dispatchLifecycle(conn, connectionOpened)
	conn.OnClose(func() {
		s.dispatchLifecycle(conn, connectionClosed)
		s.conns.removeConn(conn)
	})
	onMessage(func(msg *Message) {
		s.dispatch(conn, msg)
	})
}

// dispatchLifecycle runs a synthetic connect/disconnect event through the
// normal dispatch path so onConnection/onDisconnect hooks (and any `link`
// handler they carry) fire the same way a message hook would.
func (s *AsyncServer) dispatchLifecycle(conn AsyncConnection, eventType string) {
	s.dispatch(conn, &Message{Type: eventType})
}

func (s *AsyncServer) dispatch(conn AsyncConnection, msg *Message) {
	for _, h := range s.findAllMatchingHooks(msg) {
		if h.Step.LinkID != "" && !s.conns.boundTo(h.Step.LinkID, conn) {
			continue
		}
		hctx := &HandlerContext{
			Hook:       h,
			Component:  s.Name(),
			ConnLinkID: conn.LinkID(),
			ForwardFn:  nil,
		}
		result := executeHandlers(hctx, h.Step.Handlers, msg)
		if id := h.Link(); id != "" {
			s.conns.bind(id, conn)
		}
		if result.Err != nil {
			if h.cell != nil {
				h.cell.reject(result.Err)
			}
			continue
		}
		if h.cell != nil {
			h.cell.resolve(result.Message)
		}
		switch result.Outcome {
		case OutcomeTerminal:
			if result.Message != nil {
				_ = conn.Send(context.Background(), result.Message)
			}
		case OutcomeDropped:
			// silently discard
		}
	}
}

// SendEvent builds an action-mode Step body implementing spec §4.6's
// `sendEvent(linkId, msg)`: targets one connection if linkID is non-empty,
// otherwise broadcasts to every open connection.
func (s *AsyncServer) SendEvent(linkID string, msg *Message) func(ctx *HandlerContext) error {
	return func(hctx *HandlerContext) error {
		hctx.Request = msg
		if err := s.conns.broadcast(context.Background(), linkID, msg); err != nil {
			return &TransportError{Op: "sendEvent", Err: err}
		}
		return nil
	}
}

// Disconnect builds an action-mode Step body implementing spec §4.6's
// `disconnect(linkId)`: closes the connection currently bound to linkID.
func (s *AsyncServer) Disconnect(linkID string) func(ctx *HandlerContext) error {
	return func(hctx *HandlerContext) error {
		conn, ok := s.conns.get(linkID)
		if !ok {
			return ErrUnknownLink
		}
		if err := conn.Close(context.Background()); err != nil {
			return &TransportError{Op: "disconnect", Err: err}
		}
		return nil
	}
}

// Connections returns a snapshot of currently open connections, used by
// tests asserting on connection counts.
func (s *AsyncServer) Connections() []AsyncConnection {
	return s.conns.snapshot()
}
