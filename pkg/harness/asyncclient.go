package harness

import (
	"context"
	"log/slog"
)

// AsyncClient is a long-lived-connection component (spec §4.6): it dials
// once on Start, dispatches every inbound message through the
// BaseComponent hook registry (so onEvent/waitEvent steps see it), and
// exposes Send for sendMessage action steps.
type AsyncClient struct {
	*BaseComponent
	adapter AsyncClientAdapter
	addr    Address
	conn    AsyncConnection
}

// NewAsyncClient constructs an AsyncClient dialing addr via adapter.
func NewAsyncClient(name string, adapter AsyncClientAdapter, addr Address, logger *slog.Logger) *AsyncClient {
	c := &AsyncClient{adapter: adapter, addr: addr}
	c.BaseComponent = NewBaseComponent(name, logger,
		func(ctx context.Context) error {
			conn, err := adapter.Connect(ctx, addr)
			if err != nil {
				return err
			}
			c.conn = conn
			adapter.OnMessage(c.dispatch)
			conn.OnClose(func() {
				c.dispatch(&Message{Type: connectionClosed})
			})
			return nil
		},
		func(ctx context.Context) error {
			if c.conn == nil {
				return nil
			}
			return c.conn.Close(ctx)
		},
	)
	return c
}

// dispatch routes an inbound message to every matching hook, persistent or
// one-shot, in registration order: each hook's handler chain runs, and a
// hook with a pending cell is resolved with the chain's result (or
// rejected with its error).
func (c *AsyncClient) dispatch(msg *Message) {
	for _, h := range c.findAllMatchingHooks(msg) {
		hctx := &HandlerContext{Hook: h, Component: c.Name(), ConnLinkID: c.conn.LinkID()}
		result := executeHandlers(hctx, h.Step.Handlers, msg)
		if h.cell != nil {
			if result.Err != nil {
				h.cell.reject(result.Err)
			} else {
				h.cell.resolve(result.Message)
			}
		}
	}
}

// Send builds an action-mode Step body that writes msg on the underlying
// connection (spec §4.6's `sendMessage` step).
func (c *AsyncClient) Send(msg *Message) func(ctx *HandlerContext) error {
	return func(hctx *HandlerContext) error {
		hctx.Request = msg
		if c.conn == nil {
			return ErrComponentStopped
		}
		if err := c.conn.Send(context.Background(), msg); err != nil {
			return &TransportError{Op: "send", Err: err}
		}
		return nil
	}
}

// Disconnect builds an action-mode Step body implementing spec §4.6's
// client-side `disconnect()`: closes the connection to the remote peer.
func (c *AsyncClient) Disconnect() func(ctx *HandlerContext) error {
	return func(hctx *HandlerContext) error {
		if c.conn == nil {
			return ErrComponentStopped
		}
		if err := c.conn.Close(context.Background()); err != nil {
			return &TransportError{Op: "disconnect", Err: err}
		}
		return nil
	}
}
