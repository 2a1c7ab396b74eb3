package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ AsyncServerAdapter = (*fakeAsyncServerAdapter)(nil)

type fakeAsyncServerAdapter struct {
	proxy     bool
	listening bool
	closed    bool
	onConn    func(conn AsyncConnection, onMessage func(fn func(msg *Message)))
	broadcasts []struct {
		linkID string
		msg    *Message
	}
}

func (f *fakeAsyncServerAdapter) Listen(ctx context.Context, addr Address) error {
	f.listening = true
	return nil
}

func (f *fakeAsyncServerAdapter) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

func (f *fakeAsyncServerAdapter) IsProxy() bool { return f.proxy }

func (f *fakeAsyncServerAdapter) OnConnection(fn func(conn AsyncConnection, onMessage func(fn func(msg *Message)))) {
	f.onConn = fn
}

func (f *fakeAsyncServerAdapter) Broadcast(ctx context.Context, linkID string, msg *Message) error {
	f.broadcasts = append(f.broadcasts, struct {
		linkID string
		msg    *Message
	}{linkID, msg})
	return nil
}

func TestAsyncServer_DispatchSendsTerminalResponseBackOnConnection(t *testing.T) {
	adapter := &fakeAsyncServerAdapter{}
	server := NewAsyncServer("ws-server", adapter, Address{}, nil)
	require.NoError(t, server.Start(context.Background()))

	step := &Step{ID: "s1", Handlers: []Handler{
		MockEvent(func(*Message) (*Message, error) { return &Message{Type: "ack"}, nil }),
	}}
	hook := newHook(step, func(m *Message) bool { return m.Type == "ping" }, false, false)
	server.registerHook(hook)

	conn := &fakeConn{id: "client-1"}
	var registeredHandler func(msg *Message)
	adapter.onConn(conn, func(fn func(msg *Message)) { registeredHandler = fn })
	require.NotNil(t, registeredHandler)

	registeredHandler(&Message{Type: "ping"})
	require.Len(t, conn.sent, 1)
	assert.Equal(t, "ack", conn.sent[0].Type)
}

func TestAsyncServer_DispatchDropsSilently(t *testing.T) {
	adapter := &fakeAsyncServerAdapter{}
	server := NewAsyncServer("ws-server", adapter, Address{}, nil)
	require.NoError(t, server.Start(context.Background()))

	step := &Step{ID: "s1", Handlers: []Handler{Drop()}}
	hook := newHook(step, func(m *Message) bool { return true }, false, false)
	server.registerHook(hook)

	conn := &fakeConn{id: "client-1"}
	var registeredHandler func(msg *Message)
	adapter.onConn(conn, func(fn func(msg *Message)) { registeredHandler = fn })
	registeredHandler(&Message{Type: "anything"})

	assert.Empty(t, conn.sent)
}

func TestAsyncServer_SendEventBroadcastsViaConnectionSet(t *testing.T) {
	adapter := &fakeAsyncServerAdapter{}
	server := NewAsyncServer("ws-server", adapter, Address{}, nil)
	require.NoError(t, server.Start(context.Background()))

	connA := &fakeConn{id: "a"}
	connB := &fakeConn{id: "b"}
	adapter.onConn(connA, func(func(msg *Message)) {})
	adapter.onConn(connB, func(func(msg *Message)) {})

	action := server.SendEvent("b", &Message{Type: "targeted"})
	require.NoError(t, action(&HandlerContext{}))

	assert.Empty(t, connA.sent)
	require.Len(t, connB.sent, 1)
	assert.Equal(t, "targeted", connB.sent[0].Type)
}

func TestAsyncServer_ConnectionsReflectsOpenSet(t *testing.T) {
	adapter := &fakeAsyncServerAdapter{}
	server := NewAsyncServer("ws-server", adapter, Address{}, nil)
	require.NoError(t, server.Start(context.Background()))

	adapter.onConn(&fakeConn{id: "a"}, func(func(msg *Message)) {})
	adapter.onConn(&fakeConn{id: "b"}, func(func(msg *Message)) {})

	assert.Len(t, server.Connections(), 2)
}

func TestAsyncServer_OnConnectionFiresOnAccept(t *testing.T) {
	adapter := &fakeAsyncServerAdapter{}
	server := NewAsyncServer("ws-server", adapter, Address{}, nil)
	require.NoError(t, server.Start(context.Background()))

	step := &Step{ID: "on-connect", Persistent: true, MessageType: connectionOpened}
	var seenLink string
	hook := newHook(step, func(m *Message) bool { return m.Type == connectionOpened }, true, true)
	hook.Step.Handlers = []Handler{
		{Type: HandlerAssert, Fn: func(ctx *HandlerContext, msg *Message) (*Message, HandlerOutcome, error) {
			seenLink = ctx.ConnLinkID
			return msg, OutcomeNone, nil
		}},
	}
	server.registerHook(hook)

	conn := &fakeConn{id: "client-1"}
	adapter.onConn(conn, func(func(msg *Message)) {})

	assert.Equal(t, "client-1", seenLink)
}

func TestAsyncServer_OnDisconnectFiresWhenConnectionCloses(t *testing.T) {
	adapter := &fakeAsyncServerAdapter{}
	server := NewAsyncServer("ws-server", adapter, Address{}, nil)
	require.NoError(t, server.Start(context.Background()))

	fired := false
	hook := newHook(&Step{ID: "on-disconnect", Persistent: true}, func(m *Message) bool { return m.Type == connectionClosed }, true, true)
	hook.Step.Handlers = []Handler{
		{Type: HandlerAssert, Fn: func(_ *HandlerContext, msg *Message) (*Message, HandlerOutcome, error) {
			fired = true
			return msg, OutcomeNone, nil
		}},
	}
	server.registerHook(hook)

	conn := &fakeConn{id: "client-1"}
	adapter.onConn(conn, func(func(msg *Message)) {})
	require.NoError(t, conn.Close(context.Background()))

	assert.True(t, fired)
	assert.Len(t, server.Connections(), 0)
}

func TestAsyncServer_DisconnectClosesBoundConnection(t *testing.T) {
	adapter := &fakeAsyncServerAdapter{}
	server := NewAsyncServer("ws-server", adapter, Address{}, nil)
	require.NoError(t, server.Start(context.Background()))

	conn := &fakeConn{id: "client-1"}
	adapter.onConn(conn, func(func(msg *Message)) {})

	action := server.Disconnect("client-1")
	require.NoError(t, action(&HandlerContext{}))
	assert.True(t, conn.closed)
}

func TestAsyncServer_DisconnectUnknownLinkErrors(t *testing.T) {
	adapter := &fakeAsyncServerAdapter{}
	server := NewAsyncServer("ws-server", adapter, Address{}, nil)
	require.NoError(t, server.Start(context.Background()))

	action := server.Disconnect("missing")
	assert.ErrorIs(t, action(&HandlerContext{}), ErrUnknownLink)
}
