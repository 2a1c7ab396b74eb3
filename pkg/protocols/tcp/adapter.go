// Package tcp implements harness.AsyncProtocol over raw TCP sockets, framing
// each message as a 4-byte big-endian length prefix followed by a JSON
// envelope body (spec's second reference AsyncProtocol, SPEC_FULL.md §4.6).
// The accept-loop/connection-registry shape is grounded on
// pkg/events/manager.go, the same way pkg/protocols/ws is.
package tcp

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/meshtest/harness/pkg/harness"
	"github.com/meshtest/harness/pkg/harness/codec"
)

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

type envelope struct {
	Type    string `json:"type"`
	Payload []byte `json:"payload"`
	TraceID string `json:"traceId,omitempty"`
}

var wireCodec codec.JSON

func writeFrame(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

type connection struct {
	id     string
	conn   net.Conn
	mu     sync.Mutex
	closed bool

	closeOnce sync.Once
	onClose   func()
}

func (c *connection) LinkID() string { return c.id }

func (c *connection) Send(ctx context.Context, msg *harness.Message) error {
	b, err := wireCodec.Encode(envelope{Type: msg.Type, Payload: msg.Payload, TraceID: msg.TraceID})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return writeFrame(c.conn, b)
}

func (c *connection) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	err := c.conn.Close()
	c.fireClose()
	return err
}

// OnClose registers fn to run once, whether the connection was closed
// explicitly or the peer disconnected (readLoop exiting on a read error).
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
		data, err := readFrame(c.conn)
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

type client struct {
	logger    *slog.Logger
	conn      *connection
	onMessage func(msg *harness.Message)
}

func (c *client) Connect(ctx context.Context, addr harness.Address) (harness.AsyncConnection, error) {
	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", addr.HostPort())
	if err != nil {
		return nil, fmt.Errorf("protocols/tcp: dial: %w", err)
	}
	c.conn = &connection{id: uuid.New().String(), conn: netConn}
	go c.conn.readLoop(func(msg *harness.Message) {
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	})
	return c.conn, nil
}

func (c *client) OnMessage(fn func(msg *harness.Message)) { c.onMessage = fn }

type server struct {
	logger *slog.Logger
	target *harness.Address
	ln     net.Listener
	onConn func(conn harness.AsyncConnection, onMessage func(fn func(msg *harness.Message)))

	mu    sync.Mutex
	conns map[string]*connection
}

func (s *server) IsProxy() bool { return s.target != nil }

func (s *server) OnConnection(fn func(conn harness.AsyncConnection, onMessage func(fn func(msg *harness.Message)))) {
	s.onConn = fn
}

func (s *server) Listen(ctx context.Context, addr harness.Address) error {
	s.conns = make(map[string]*connection)
	ln, err := net.Listen("tcp", addr.HostPort())
	if err != nil {
		return fmt.Errorf("protocols/tcp: listen: %w", err)
	}
	s.ln = ln
	go s.acceptLoop()
	return nil
}

func (s *server) acceptLoop() {
	for {
		netConn, err := s.ln.Accept()
		if err != nil {
			return
		}
		conn := &connection{id: uuid.New().String(), conn: netConn}
		s.mu.Lock()
		s.conns[conn.id] = conn
		s.mu.Unlock()
		if s.onConn != nil {
			s.onConn(conn, func(fn func(msg *harness.Message)) {
				go conn.readLoop(fn)
			})
		}
	}
}

func (s *server) Close(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.Close(ctx)
	}
	s.mu.Unlock()
	return s.ln.Close()
}

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
