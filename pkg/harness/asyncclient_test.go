package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ AsyncClientAdapter = (*fakeAsyncClientAdapter)(nil)

type fakeAsyncClientAdapter struct {
	conn    *fakeConn
	onMsg   func(msg *Message)
	connErr error
}

func (f *fakeAsyncClientAdapter) Connect(ctx context.Context, addr Address) (AsyncConnection, error) {
	if f.connErr != nil {
		return nil, f.connErr
	}
	f.conn = &fakeConn{id: "client-conn"}
	return f.conn, nil
}

func (f *fakeAsyncClientAdapter) OnMessage(fn func(msg *Message)) { f.onMsg = fn }

func TestAsyncClient_DispatchResolvesWaitingHook(t *testing.T) {
	adapter := &fakeAsyncClientAdapter{}
	client := NewAsyncClient("ws-client", adapter, Address{}, nil)
	require.NoError(t, client.Start(context.Background()))
	require.NotNil(t, adapter.onMsg, "Start must register OnMessage")

	step := &Step{ID: "wait-1"}
	hook := newHook(step, func(m *Message) bool { return m.Type == "tick" }, false, true)
	client.registerHook(hook)

	adapter.onMsg(&Message{Type: "tick", Payload: []byte("1")})

	msg, err := hook.cell.await(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "tick", msg.Type)
}

func TestAsyncClient_DispatchFansOutToEveryMatchingPersistentHook(t *testing.T) {
	adapter := &fakeAsyncClientAdapter{}
	client := NewAsyncClient("ws-client", adapter, Address{}, nil)
	require.NoError(t, client.Start(context.Background()))

	step := &Step{ID: "on-1", Persistent: true}
	first := newHook(step, func(m *Message) bool { return true }, true, true)
	second := newHook(step, func(m *Message) bool { return true }, true, true)
	client.registerHook(first)
	client.registerHook(second)

	adapter.onMsg(&Message{Type: "broadcast"})

	assert.True(t, first.Resolved())
	assert.True(t, second.Resolved())
}

func TestAsyncClient_SendWritesOnUnderlyingConnection(t *testing.T) {
	adapter := &fakeAsyncClientAdapter{}
	client := NewAsyncClient("ws-client", adapter, Address{}, nil)
	require.NoError(t, client.Start(context.Background()))

	action := client.Send(&Message{Type: "ping"})
	require.NoError(t, action(&HandlerContext{}))
	require.Len(t, adapter.conn.sent, 1)
	assert.Equal(t, "ping", adapter.conn.sent[0].Type)
}

func TestAsyncClient_SendBeforeStartErrors(t *testing.T) {
	client := NewAsyncClient("ws-client", &fakeAsyncClientAdapter{}, Address{}, nil)
	action := client.Send(&Message{Type: "ping"})
	assert.ErrorIs(t, action(&HandlerContext{}), ErrComponentStopped)
}

func TestAsyncClient_DisconnectClosesConnectionAndFiresOnClose(t *testing.T) {
	adapter := &fakeAsyncClientAdapter{}
	client := NewAsyncClient("ws-client", adapter, Address{}, nil)
	require.NoError(t, client.Start(context.Background()))

	hook := newHook(&Step{ID: "wait-disconnect"}, func(m *Message) bool { return m.Type == connectionClosed }, false, true)
	client.registerHook(hook)

	action := client.Disconnect()
	require.NoError(t, action(&HandlerContext{}))

	assert.True(t, adapter.conn.closed)
	assert.True(t, hook.Resolved())
}

func TestAsyncClient_DisconnectBeforeStartErrors(t *testing.T) {
	client := NewAsyncClient("ws-client", &fakeAsyncClientAdapter{}, Address{}, nil)
	action := client.Disconnect()
	assert.ErrorIs(t, action(&HandlerContext{}), ErrComponentStopped)
}
