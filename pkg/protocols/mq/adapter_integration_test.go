package mq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshtest/harness/pkg/harness"
)

// requireNATS skips the test when no NATS server is reachable at the default
// local address. Unlike the Postgres adapter there is no testcontainers
// module for NATS in the dependency pack, so this test runs opportunistically
// against whatever server a developer or CI job has started rather than
// provisioning one itself.
func requireNATS(t *testing.T) harness.Address {
	t.Helper()
	addr := harness.Address{Host: "127.0.0.1", Port: 4222}
	adapter := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := adapter.Connect(ctx, addr); err != nil {
		t.Skipf("no NATS server reachable at %s: %v", addr.HostPort(), err)
	}
	_ = adapter.Close(context.Background())
	return addr
}

func TestMQ_PublishBatchPreservesOrderAcrossRealBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network-bound integration test in short mode")
	}
	addr := requireNATS(t)

	adapter := New(nil)
	pubsub := harness.NewPubSub("bus", adapter, addr, nil)
	require.NoError(t, pubsub.Start(context.Background()))
	defer pubsub.Stop(context.Background())

	topic := "harness.test.orders"
	received := make(chan *harness.Message, 4)
	require.NoError(t, adapter.Subscribe(context.Background(), topic, func(msg *harness.Message) {
		received <- msg
	}))
	defer adapter.Unsubscribe(context.Background(), topic)

	msgs := []*harness.Message{
		{Type: "order.created", Payload: []byte("1")},
		{Type: "order.created", Payload: []byte("2")},
		{Type: "order.created", Payload: []byte("3")},
	}
	require.NoError(t, adapter.PublishBatch(context.Background(), topic, msgs))

	for i, want := range msgs {
		select {
		case got := <-received:
			assert.Equal(t, want.Payload, got.Payload, "message %d out of order", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestMQ_SubscribeDispatchesToPubSubEventHook(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network-bound integration test in short mode")
	}
	addr := requireNATS(t)

	serverAdapter := New(nil)
	pubsub := harness.NewPubSub("bus", serverAdapter, addr, nil)
	require.NoError(t, pubsub.Start(context.Background()))
	defer pubsub.Stop(context.Background())

	topic := "harness.test.greeting"
	require.NoError(t, pubsub.SubscribeTopic(context.Background(), topic))

	scenario := harness.NewScenario("mq round trip", harness.Options{})
	scenario.AddComponent("bus", pubsub, pubsub.BaseComponent)

	received := make(chan *harness.Message, 1)
	capture := harness.Handler{
		Type: harness.HandlerAssert,
		Fn: func(_ *harness.HandlerContext, msg *harness.Message) (*harness.Message, harness.HandlerOutcome, error) {
			received <- msg
			return msg, harness.OutcomeNone, nil
		},
	}

	tc := harness.NewTestCase("publish then observe").
		OnEvent("bus", "greeting", capture).
		Do("bus", pubsub.Publish(topic, &harness.Message{Type: "greeting", Payload: []byte("hello")})).
		Build()

	exec := &harness.Executor{Registry: scenario}
	_, err := exec.Run(context.Background(), tc)
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, "greeting", msg.Type)
		assert.Equal(t, []byte("hello"), msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never observed the published message")
	}
}
