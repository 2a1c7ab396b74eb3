// Package mq implements harness.MQAdapter over NATS core pub/sub, grounded
// on C360Studio-semspec's processor/task-dispatcher/component.go (the only
// repo in the pack with a message-queue dependency). Topics map 1:1 onto
// NATS subjects; PublishBatch iterates Publish in order since core NATS has
// no native batch-publish primitive.
package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/meshtest/harness/pkg/harness"
	"github.com/meshtest/harness/pkg/harness/codec"
)

var wireCodec codec.JSON

// Adapter is harness.MQAdapter's NATS implementation.
type Adapter struct {
	logger *slog.Logger
	conn   *nats.Conn

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// New returns an unconnected NATS Adapter.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{logger: logger, subs: make(map[string]*nats.Subscription)}
}

func (a *Adapter) Connect(ctx context.Context, addr harness.Address) error {
	url := fmt.Sprintf("nats://%s", addr.HostPort())
	conn, err := nats.Connect(url)
	if err != nil {
		return fmt.Errorf("protocols/mq: connect: %w", err)
	}
	a.conn = conn
	return nil
}

func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	for _, sub := range a.subs {
		_ = sub.Unsubscribe()
	}
	a.subs = make(map[string]*nats.Subscription)
	a.mu.Unlock()
	if a.conn != nil {
		a.conn.Close()
	}
	return nil
}

type envelope struct {
	Type    string `json:"type"`
	Payload []byte `json:"payload"`
	TraceID string `json:"traceId,omitempty"`
}

func (a *Adapter) Publish(ctx context.Context, topic string, msg *harness.Message) error {
	b, err := encodeEnvelope(msg)
	if err != nil {
		return err
	}
	if err := a.conn.Publish(topic, b); err != nil {
		return &harness.TransportError{Op: "publish", Err: err}
	}
	return nil
}

// PublishBatch publishes msgs to topic one at a time, in order, since NATS
// core pub/sub exposes no native batch-publish call.
func (a *Adapter) PublishBatch(ctx context.Context, topic string, msgs []*harness.Message) error {
	for _, m := range msgs {
		if err := a.Publish(ctx, topic, m); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) Subscribe(ctx context.Context, topic string, fn func(msg *harness.Message)) error {
	sub, err := a.conn.Subscribe(topic, func(natsMsg *nats.Msg) {
		msg, err := decodeEnvelope(natsMsg.Data)
		if err != nil {
			a.logger.Warn("protocols/mq: dropping malformed message", "topic", topic, "error", err)
			return
		}
		fn(msg)
	})
	if err != nil {
		return &harness.TransportError{Op: "subscribe", Err: err}
	}
	a.mu.Lock()
	a.subs[topic] = sub
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Unsubscribe(ctx context.Context, topic string) error {
	a.mu.Lock()
	sub, ok := a.subs[topic]
	delete(a.subs, topic)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return sub.Unsubscribe()
}

func encodeEnvelope(msg *harness.Message) ([]byte, error) {
	env := envelope{Type: msg.Type, Payload: msg.Payload, TraceID: msg.TraceID}
	return wireCodec.Encode(env)
}

func decodeEnvelope(data []byte) (*harness.Message, error) {
	var env envelope
	if err := wireCodec.Decode(data, &env); err != nil {
		return nil, err
	}
	return &harness.Message{Type: env.Type, Payload: env.Payload, TraceID: env.TraceID}, nil
}
