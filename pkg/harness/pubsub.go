package harness

import (
	"context"
	"log/slog"
)

// PubSub is a message-queue component (spec §4.7): it can publish to topics
// and subscribe to topics, dispatching delivered messages through the hook
// registry like an async server would, but keyed by topic rather than by
// connection.
type PubSub struct {
	*BaseComponent
	adapter MQAdapter
	addr    Address
}

// NewPubSub constructs a PubSub connecting to addr via adapter.
func NewPubSub(name string, adapter MQAdapter, addr Address, logger *slog.Logger) *PubSub {
	p := &PubSub{adapter: adapter, addr: addr}
	p.BaseComponent = NewBaseComponent(name, logger,
		func(ctx context.Context) error { return adapter.Connect(ctx, addr) },
		func(ctx context.Context) error { return adapter.Close(ctx) },
	)
	return p
}

// Publish builds an action-mode Step body for spec §4.7's `publish(topic,
// msg)` step.
func (p *PubSub) Publish(topic string, msg *Message) func(ctx *HandlerContext) error {
	return func(hctx *HandlerContext) error {
		hctx.Request = msg
		if err := p.adapter.Publish(context.Background(), topic, msg); err != nil {
			return &TransportError{Op: "publish", Err: err}
		}
		return nil
	}
}

// PublishBatch builds an action-mode Step body for spec §4.7's
// `publishBatch(topic, msgs)` step, preserving msgs' order.
func (p *PubSub) PublishBatch(topic string, msgs []*Message) func(ctx *HandlerContext) error {
	return func(hctx *HandlerContext) error {
		if err := p.adapter.PublishBatch(context.Background(), topic, msgs); err != nil {
			return &TransportError{Op: "publishBatch", Err: err}
		}
		return nil
	}
}

// SubscribeTopic arranges for messages delivered on topic to flow through
// the component's hook registry, so onEvent/waitEvent steps against this
// component match delivered messages the same way they match async server
// events.
func (p *PubSub) SubscribeTopic(ctx context.Context, topic string) error {
	return p.adapter.Subscribe(ctx, topic, func(msg *Message) {
		p.dispatch(msg)
	})
}

func (p *PubSub) dispatch(msg *Message) {
	for _, h := range p.findAllMatchingHooks(msg) {
		hctx := &HandlerContext{Hook: h, Component: p.Name()}
		result := executeHandlers(hctx, h.Step.Handlers, msg)
		if h.cell == nil {
			continue
		}
		if result.Err != nil {
			h.cell.reject(result.Err)
		} else {
			h.cell.resolve(result.Message)
		}
	}
}
