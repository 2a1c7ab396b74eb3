// Package ws implements harness.AsyncProtocol over WebSocket using
// github.com/coder/websocket, the library codeready-toolchain-tarsy's
// pkg/events/manager.go uses for its ConnectionManager.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gin-gonic/gin"

	"github.com/meshtest/harness/pkg/harness"
	"github.com/meshtest/harness/pkg/harness/codec"
)

// Protocol is harness.AsyncProtocol's WebSocket implementation.
type Protocol struct {
	Logger *slog.Logger
}

func New(logger *slog.Logger) *Protocol {
	if logger == nil {
		logger = slog.Default()
	}
	return &Protocol{Logger: logger}
}

func (p *Protocol) NewClient() harness.AsyncClientAdapter {
	return &client{logger: p.Logger}
}

func (p *Protocol) NewServer(target *harness.Address) harness.AsyncServerAdapter {
	return &server{logger: p.Logger, target: target}
}

// envelope is the wire frame every message is coded as, matching the
// {type, payload} shape tarsy's events package uses for outbound frames.
type envelope struct {
	Type    string `json:"type"`
	Payload []byte `json:"payload"`
	TraceID string `json:"traceId,omitempty"`
}

var wireCodec codec.JSON

func listenTCP(hostport string) (net.Listener, error) {
	return net.Listen("tcp", hostport)
}

// connection wraps a *websocket.Conn with a stable link id, grounded
// directly on events/manager.go's Connection struct (ID + Conn + cancel).
type connection struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	onClose   func()
}

func (c *connection) LinkID() string { return c.id }

func (c *connection) Send(ctx context.Context, msg *harness.Message) error {
	b, err := wireCodec.Encode(envelope{Type: msg.Type, Payload: msg.Payload, TraceID: msg.TraceID})
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, b)
}

func (c *connection) Close(ctx context.Context) error {
	c.cancel()
	err := c.conn.Close(websocket.StatusNormalClosure, "closed")
	c.fireClose()
	return err
}

// OnClose registers fn to run once, whether the connection was closed
// explicitly or the peer disconnected (readLoop exiting on a Read error).
func (c *connection) OnClose(fn func()) {
	c.onClose = fn
}

func (c *connection) fireClose() {
	c.closeOnce.Do(func() {
		if c.onClose != nil {
			c.onClose()
		}
	})
}

func (c *connection) readLoop(onMessage func(msg *harness.Message)) {
	defer c.fireClose()
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}
		var env envelope
		if err := wireCodec.Decode(data, &env); err != nil {
			continue
		}
		onMessage(&harness.Message{Type: env.Type, Payload: env.Payload, TraceID: env.TraceID})
	}
}

// client is harness.AsyncClientAdapter: dials one WebSocket connection.
type client struct {
	logger    *slog.Logger
	conn      *connection
	onMessage func(msg *harness.Message)
}

func (c *client) Connect(ctx context.Context, addr harness.Address) (harness.AsyncConnection, error) {
	url := fmt.Sprintf("ws://%s%s", addr.HostPort(), addr.Path)
	wsConn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("protocols/ws: dial: %w", err)
	}
	connCtx, cancel := context.WithCancel(context.Background())
	c.conn = &connection{id: uuid.New().String(), conn: wsConn, ctx: connCtx, cancel: cancel}
	go c.conn.readLoop(func(msg *harness.Message) {
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	})
	return c.conn, nil
}

func (c *client) OnMessage(fn func(msg *harness.Message)) { c.onMessage = fn }

// server is harness.AsyncServerAdapter: accepts WebSocket connections over
// an http.Server, the same net/http + coder/websocket combination
// events/manager.go's HandleConnection is built for.
type server struct {
	logger    *slog.Logger
	target    *harness.Address
	srv       *http.Server
	onConn    func(conn harness.AsyncConnection, onMessage func(fn func(msg *harness.Message)))

	mu    sync.Mutex
	conns map[string]*connection
}

func (s *server) IsProxy() bool { return s.target != nil }

func (s *server) OnConnection(fn func(conn harness.AsyncConnection, onMessage func(fn func(msg *harness.Message)))) {
	s.onConn = fn
}

func (s *server) Listen(ctx context.Context, addr harness.Address) error {
	s.conns = make(map[string]*connection)
	router := gin.New()
	router.Use(gin.Recovery())
	path := addr.Path
	if path == "" {
		path = "/"
	}
	router.GET(path, func(c *gin.Context) {
		wsConn, err := websocket.Accept(c.Writer, c.Request, nil)
		if err != nil {
			s.logger.Error("protocols/ws: accept failed", "error", err)
			return
		}
		connCtx, cancel := context.WithCancel(context.Background())
		conn := &connection{id: uuid.New().String(), conn: wsConn, ctx: connCtx, cancel: cancel}

		s.mu.Lock()
		s.conns[conn.id] = conn
		s.mu.Unlock()

		if s.onConn != nil {
			s.onConn(conn, func(fn func(msg *harness.Message)) {
				go conn.readLoop(fn)
			})
		}
	})

	s.srv = &http.Server{Addr: addr.HostPort(), Handler: router}
	ln, err := listenTCP(addr.HostPort())
	if err != nil {
		return fmt.Errorf("protocols/ws: listen: %w", err)
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("protocols/ws: serve error", "error", err)
		}
	}()
	return nil
}

func (s *server) Close(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.Close(ctx)
	}
	s.mu.Unlock()
	return s.srv.Shutdown(ctx)
}

// Broadcast implements harness.AsyncServerAdapter's direct broadcast escape
// hatch; the harness core normally drives sends through its own
// connectionSet instead (see pkg/harness/connection.go), but adapters
// expose this for callers that hold only the adapter, not a harness.AsyncServer.
func (s *server) Broadcast(ctx context.Context, linkID string, msg *harness.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if linkID != "" {
		c, ok := s.conns[linkID]
		if !ok {
			return harness.ErrUnknownLink
		}
		return c.Send(ctx, msg)
	}
	var firstErr error
	for _, c := range s.conns {
		if err := c.Send(ctx, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
