package harness

import (
	"context"
	"log/slog"
	"sync"
)

// SyncClient is a request/response component (spec §4.5): it holds a
// SyncClientAdapter, tracks in-flight requests by message type so a later
// onResponse/waitResponse step can find the right hook, and exposes the
// BaseComponent hook registry the Executor dispatches wait steps against.
type SyncClient struct {
	*BaseComponent
	adapter SyncClientAdapter
	addr    Address

	mu        sync.Mutex
	responses map[string]*Message // last response per request message type
	requested map[string]bool     // messageTypes a request has been sent for
}

// NewSyncClient constructs a SyncClient dialing addr via adapter on Start.
func NewSyncClient(name string, adapter SyncClientAdapter, addr Address, logger *slog.Logger) *SyncClient {
	c := &SyncClient{
		adapter:   adapter,
		addr:      addr,
		responses: make(map[string]*Message),
		requested: make(map[string]bool),
	}
	c.BaseComponent = NewBaseComponent(name, logger,
		func(ctx context.Context) error { return adapter.Connect(ctx, addr) },
		func(ctx context.Context) error { return adapter.Close(ctx) },
	)
	c.BaseComponent.ResponseGate = c.hasRequested
	return c
}

// Request builds an action-mode Step implementing spec §4.5's `request`
// step: it finds every onResponse/waitResponse hook already registered for
// msg.Type (Phase 1 ran before this action, per the three-phase executor),
// performs the transport round-trip, and resolves or rejects each matching
// hook's pending cell with the outcome.
func (c *SyncClient) Request(msg *Message) func(ctx *HandlerContext) error {
	return func(hctx *HandlerContext) error {
		hctx.Request = msg

		c.mu.Lock()
		c.requested[msg.Type] = true
		c.mu.Unlock()

		hooks := c.findAllMatchingHooks(msg)

		resp, err := c.adapter.Request(context.Background(), msg)
		if err != nil {
			txErr := &TransportError{Op: "request", Err: err}
			for _, h := range hooks {
				if h.cell != nil {
					h.cell.reject(txErr)
				}
			}
			return txErr
		}
		hctx.Response = resp

		c.mu.Lock()
		c.responses[msg.Type] = resp
		c.mu.Unlock()

		for _, h := range hooks {
			if h.cell != nil {
				h.cell.resolve(resp)
			}
		}
		return nil
	}
}

// hasRequested reports whether a request has been sent for msgType, so a
// waitResponse step with no corresponding request can fail fast
// with ErrNoMatchingRequest instead of blocking out its full timeout.
func (c *SyncClient) hasRequested(msgType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requested[msgType]
}

// LastResponse returns the most recently recorded response for a given
// request message type, or nil if none has arrived yet.
func (c *SyncClient) LastResponse(msgType string) *Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.responses[msgType]; ok {
		return m.Clone()
	}
	return nil
}
