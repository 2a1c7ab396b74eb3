package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/meshtest/harness/pkg/harness"
)

// StreamProtocol is harness.AsyncProtocol's gRPC bidirectional-streaming
// implementation (SPEC_FULL.md §4.6): a long-lived stream has the same
// half-duplex callback shape as a WebSocket connection, so it's exposed
// through the same AsyncConnection interface. Grounded on
// pkg/agent/llm_grpc.go's GRPCLLMClient.Generate, which fans stream.Recv()
// results out into a buffered channel from a background goroutine.
type StreamProtocol struct {
	Logger *slog.Logger
}

func NewStream(logger *slog.Logger) *StreamProtocol {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamProtocol{Logger: logger}
}

func (p *StreamProtocol) NewClient() harness.AsyncClientAdapter {
	return &streamClient{logger: p.Logger}
}

func (p *StreamProtocol) NewServer(target *harness.Address) harness.AsyncServerAdapter {
	return &streamServer{logger: p.Logger, target: target}
}

// StreamConnection wraps a bidirectional grpc.ClientStream (dialed
// side) as a harness.AsyncConnection: LinkID is the stream's call-scoped
// id, Send marshals via the raw codec, and the owning goroutine dispatches
// received frames by calling the registered onMessage callback.
type StreamConnection struct {
	id     string
	stream grpc.ClientStream
	mu     sync.Mutex

	closeOnce sync.Once
	onClose   func()
}

func (c *StreamConnection) LinkID() string { return c.id }

func (c *StreamConnection) Send(ctx context.Context, msg *harness.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.SendMsg(&frame{data: msg.Payload})
}

func (c *StreamConnection) Close(ctx context.Context) error {
	err := c.stream.CloseSend()
	c.fireClose()
	return err
}

// OnClose registers fn to run once, whether the stream was closed
// explicitly or the server ended it (RecvMsg returning an error).
func (c *StreamConnection) OnClose(fn func()) {
	c.onClose = fn
}

func (c *StreamConnection) fireClose() {
	c.closeOnce.Do(func() {
		if c.onClose != nil {
			c.onClose()
		}
	})
}

type streamClient struct {
	logger    *slog.Logger
	conn      *grpc.ClientConn
	onMessage func(msg *harness.Message)
}

func (c *streamClient) Connect(ctx context.Context, addr harness.Address) (harness.AsyncConnection, error) {
	conn, err := grpc.NewClient(addr.HostPort(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("protocols/grpc: dial: %w", err)
	}
	c.conn = conn

	desc := &grpc.StreamDesc{StreamName: "harness-stream", ClientStreams: true, ServerStreams: true}
	stream, err := conn.NewStream(ctx, desc, addr.Path, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, fmt.Errorf("protocols/grpc: new stream: %w", err)
	}

	sc := &StreamConnection{id: generateStreamID(), stream: stream}
	go func() {
		defer sc.fireClose()
		for {
			var f frame
			if err := stream.RecvMsg(&f); err != nil {
				return
			}
			if c.onMessage != nil {
				c.onMessage(&harness.Message{Type: addr.Path, Payload: f.data})
			}
		}
	}()
	return sc, nil
}

func (c *streamClient) OnMessage(fn func(msg *harness.Message)) { c.onMessage = fn }

// streamServer accepts bidirectional-streaming calls through the same generic
// UnknownServiceHandler technique the unary server uses.
type streamServer struct {
	logger *slog.Logger
	target *harness.Address
	srv    *grpc.Server
	onConn func(conn harness.AsyncConnection, onMessage func(fn func(msg *harness.Message)))

	mu    sync.Mutex
	conns map[string]*serverSideStream
}

type serverSideStream struct {
	id     string
	stream grpc.ServerStream

	closeOnce sync.Once
	onClose   func()
}

func (s *serverSideStream) LinkID() string { return s.id }
func (s *serverSideStream) Send(ctx context.Context, msg *harness.Message) error {
	return s.stream.SendMsg(&frame{data: msg.Payload})
}
func (s *serverSideStream) Close(ctx context.Context) error {
	s.fireClose()
	return nil
}

// OnClose registers fn to run once, when the client ends the stream
// (RecvMsg returning an error) or the server explicitly closes it.
func (s *serverSideStream) OnClose(fn func()) {
	s.onClose = fn
}

func (s *serverSideStream) fireClose() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
	})
}

func (s *streamServer) IsProxy() bool { return s.target != nil }

func (s *streamServer) OnConnection(fn func(conn harness.AsyncConnection, onMessage func(fn func(msg *harness.Message)))) {
	s.onConn = fn
}

func (s *streamServer) Listen(ctx context.Context, addr harness.Address) error {
	s.conns = make(map[string]*serverSideStream)
	s.srv = grpc.NewServer(grpc.UnknownServiceHandler(s.handleStream))
	ln, err := listenTCP(addr.HostPort())
	if err != nil {
		return fmt.Errorf("protocols/grpc: listen: %w", err)
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil {
			s.logger.Error("protocols/grpc: stream serve error", "error", err)
		}
	}()
	return nil
}

func (s *streamServer) handleStream(srv any, stream grpc.ServerStream) error {
	sc := &serverSideStream{id: generateStreamID(), stream: stream}
	s.mu.Lock()
	s.conns[sc.id] = sc
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, sc.id)
		s.mu.Unlock()
	}()

	done := make(chan struct{})
	if s.onConn != nil {
		s.onConn(sc, func(fn func(msg *harness.Message)) {
			go func() {
				defer close(done)
				defer sc.fireClose()
				for {
					var f frame
					if err := stream.RecvMsg(&f); err != nil {
						return
					}
					fn(&harness.Message{Payload: f.data})
				}
			}()
		})
	}
	<-done
	return nil
}

func (s *streamServer) Close(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.srv.GracefulStop()
	return nil
}

func (s *streamServer) Broadcast(ctx context.Context, linkID string, msg *harness.Message) error {
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

var streamIDCounter atomic.Uint64

func generateStreamID() string {
	return fmt.Sprintf("grpc-stream-%d", streamIDCounter.Add(1))
}
