package harness

import (
	"context"
	"log/slog"
)

// Forwarder is implemented by a proxy-mode SyncServerAdapter to perform the
// actual upstream round-trip when a request isn't explicitly terminated by
// the handler chain (spec §4.5 step 3). protocols/http and protocols/grpc's
// proxy-mode servers implement it.
type Forwarder interface {
	Forward(ctx context.Context, msg *Message) (*Message, error)
}

// SyncServer is a mock/proxy request/response server (spec §4.5). In mock
// mode (targetAddress nil) an unhandled request falls through to nil/404.
// In proxy mode, a request the handler chain doesn't explicitly terminate
// or forward is implicitly forwarded upstream (spec §4.5 step 3).
type SyncServer struct {
	*BaseComponent
	adapter SyncServerAdapter
	addr    Address
}

// NewSyncServer constructs a SyncServer listening on addr via adapter.
// adapter must already be built in mock or proxy mode (protocols/http.NewServer
// et al. decide this from whether a target address was supplied).
func NewSyncServer(name string, adapter SyncServerAdapter, addr Address, logger *slog.Logger) *SyncServer {
	s := &SyncServer{adapter: adapter, addr: addr}
	s.BaseComponent = NewBaseComponent(name, logger,
		func(ctx context.Context) error {
			adapter.SetHandler(s.handle)
			return adapter.Listen(ctx, addr)
		},
		func(ctx context.Context) error { return adapter.Close(ctx) },
	)
	return s
}

// handle is invoked by the adapter for every inbound request. It finds the
// first matching hook's handler chain, runs it, and decides the response
// per the terminal/forwarded/dropped disposition executeHandlers computes.
func (s *SyncServer) handle(ctx context.Context, msg *Message) (*Message, error) {
	hook := s.findMatchingHook(msg)
	if hook == nil {
		if s.adapter.IsProxy() {
			return s.forward(ctx, msg)
		}
		return nil, nil
	}

	hctx := &HandlerContext{
		Hook:      hook,
		Component: s.Name(),
		ForwardFn: func(m *Message) (*Message, error) { return s.upstream(ctx, m) },
	}
	result := executeHandlers(hctx, hook.Step.Handlers, msg)
	if result.Err != nil {
		return nil, result.Err
	}

	switch result.Outcome {
	case OutcomeDropped:
		return nil, nil
	case OutcomeTerminal, OutcomeForwarded:
		if hook.cell != nil {
			hook.cell.resolve(msg)
		}
		return result.Message, nil
	default:
		if hook.cell != nil {
			hook.cell.resolve(msg)
		}
		if s.adapter.IsProxy() {
			return s.forward(ctx, msg)
		}
		return nil, nil
	}
}

func (s *SyncServer) forward(ctx context.Context, msg *Message) (*Message, error) {
	resp, err := s.upstream(ctx, msg)
	if err != nil {
		return nil, &TransportError{Op: "proxy-forward", Err: err}
	}
	return resp, nil
}

// upstream performs the proxy round-trip via the adapter's Forwarder
// implementation, if it has one.
func (s *SyncServer) upstream(ctx context.Context, msg *Message) (*Message, error) {
	fw, ok := s.adapter.(Forwarder)
	if !ok {
		return nil, ErrProxyMode
	}
	return fw.Forward(ctx, msg)
}
