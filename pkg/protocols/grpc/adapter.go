package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/meshtest/harness/pkg/harness"
)

func listenTCP(hostport string) (net.Listener, error) {
	return net.Listen("tcp", hostport)
}

// Protocol is harness.SyncProtocol's gRPC-unary implementation. Message.Type
// is the fully-qualified method name, e.g. "/pkg.Service/Method".
type Protocol struct {
	Logger *slog.Logger
}

func New(logger *slog.Logger) *Protocol {
	if logger == nil {
		logger = slog.Default()
	}
	return &Protocol{Logger: logger}
}

func (p *Protocol) NewClient() harness.SyncClientAdapter {
	return &client{logger: p.Logger}
}

func (p *Protocol) NewServer(target *harness.Address) harness.SyncServerAdapter {
	return &server{logger: p.Logger, target: target}
}

// client is harness.SyncClientAdapter over a *grpc.ClientConn, invoking
// methods generically via the raw codec instead of generated stubs —
// grounded on pkg/agent/llm_grpc.go's grpc.NewClient(insecure) construction.
type client struct {
	logger *slog.Logger
	conn   *grpc.ClientConn
}

func (c *client) Connect(ctx context.Context, addr harness.Address) error {
	conn, err := grpc.NewClient(addr.HostPort(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("protocols/grpc: dial: %w", err)
	}
	c.conn = conn
	return nil
}

func (c *client) Close(ctx context.Context) error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *client) NativeClient() any { return c.conn }

func (c *client) Request(ctx context.Context, msg *harness.Message) (*harness.Message, error) {
	var reply frame
	err := c.conn.Invoke(ctx, msg.Type, &frame{data: msg.Payload}, &reply, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, fmt.Errorf("protocols/grpc: invoke %s: %w", msg.Type, err)
	}
	return &harness.Message{Type: msg.Type, Payload: reply.data, TraceID: msg.TraceID}, nil
}

// server is harness.SyncServerAdapter over a generic grpc.Server that
// accepts any method name via UnknownServiceHandler, since there is no
// generated service descriptor to register against.
type server struct {
	logger  *slog.Logger
	target  *harness.Address
	handler func(ctx context.Context, msg *harness.Message) (*harness.Message, error)
	srv     *grpc.Server
	upClient *grpc.ClientConn

	mu sync.Mutex
}

func (s *server) IsProxy() bool { return s.target != nil }

func (s *server) SetHandler(fn func(ctx context.Context, msg *harness.Message) (*harness.Message, error)) {
	s.handler = fn
}

func (s *server) Listen(ctx context.Context, addr harness.Address) error {
	if s.target != nil {
		upConn, err := grpc.NewClient(s.target.HostPort(), grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("protocols/grpc: dial target: %w", err)
		}
		s.upClient = upConn
	}

	s.srv = grpc.NewServer(grpc.UnknownServiceHandler(s.streamHandler))
	ln, err := listenTCP(addr.HostPort())
	if err != nil {
		return fmt.Errorf("protocols/grpc: listen: %w", err)
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil {
			s.logger.Error("protocols/grpc: serve error", "error", err)
		}
	}()
	return nil
}

// streamHandler is invoked for every inbound unary call regardless of
// method name (grpc.UnknownServiceHandler), reads the single request
// frame, dispatches it through the harness handler, and writes back the
// single response frame — the unary RPC shape expressed over a streaming
// handler, which is how generic gRPC proxies support arbitrary services
// without .proto-generated stubs.
func (s *server) streamHandler(srv any, stream grpc.ServerStream) error {
	method, ok := grpc.MethodFromServerStream(stream)
	if !ok {
		return fmt.Errorf("protocols/grpc: no method in stream context")
	}

	var req frame
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}

	msg := &harness.Message{Type: method, Payload: req.data}

	if s.handler == nil {
		return fmt.Errorf("protocols/grpc: no handler installed")
	}
	resp, err := s.handler(stream.Context(), msg)
	if err != nil {
		return err
	}
	if resp == nil {
		return fmt.Errorf("protocols/grpc: request dropped")
	}
	return stream.SendMsg(&frame{data: resp.Payload})
}

func (s *server) Close(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.srv.GracefulStop()
	if s.upClient != nil {
		return s.upClient.Close()
	}
	return nil
}

// Forward implements harness.Forwarder for proxy-mode servers: it replays
// msg as a unary call to the configured upstream target.
func (s *server) Forward(ctx context.Context, msg *harness.Message) (*harness.Message, error) {
	if s.upClient == nil {
		return nil, harness.ErrProxyMode
	}
	var reply frame
	if err := s.upClient.Invoke(ctx, msg.Type, &frame{data: msg.Payload}, &reply, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return &harness.Message{Type: msg.Type, Payload: reply.data, TraceID: msg.TraceID}, nil
}
