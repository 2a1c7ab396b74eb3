package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ SyncClientAdapter = (*fakeSyncClientAdapter)(nil)

type fakeSyncClientAdapter struct {
	connected bool
	closed    bool
	response  *Message
	reqErr    error
	lastReq   *Message
}

func (f *fakeSyncClientAdapter) Connect(ctx context.Context, addr Address) error {
	f.connected = true
	return nil
}

func (f *fakeSyncClientAdapter) Request(ctx context.Context, msg *Message) (*Message, error) {
	f.lastReq = msg
	if f.reqErr != nil {
		return nil, f.reqErr
	}
	return f.response, nil
}

func (f *fakeSyncClientAdapter) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

func (f *fakeSyncClientAdapter) NativeClient() any { return f }

func TestSyncClient_RequestRecordsLastResponse(t *testing.T) {
	adapter := &fakeSyncClientAdapter{response: &Message{Type: "200", Payload: []byte(`{"ok":true}`)}}
	client := NewSyncClient("api-client", adapter, Address{Host: "localhost", Port: 8080}, nil)

	require.NoError(t, client.Start(context.Background()))
	assert.True(t, adapter.connected)

	req := &Message{Type: "GET /orders"}
	action := client.Request(req)
	require.NoError(t, action(&HandlerContext{}))

	assert.Equal(t, req, adapter.lastReq)
	got := client.LastResponse("GET /orders")
	require.NotNil(t, got)
	assert.Equal(t, "200", got.Type)

	// LastResponse returns a clone, not the stored instance.
	got.Type = "mutated"
	assert.Equal(t, "200", client.LastResponse("GET /orders").Type)

	require.NoError(t, client.Stop(context.Background()))
	assert.True(t, adapter.closed)
}

func TestSyncClient_RequestPopulatesHandlerContext(t *testing.T) {
	adapter := &fakeSyncClientAdapter{response: &Message{Type: "200"}}
	client := NewSyncClient("api-client", adapter, Address{}, nil)

	req := &Message{Type: "GET /orders"}
	action := client.Request(req)
	hctx := &HandlerContext{}
	require.NoError(t, action(hctx))

	assert.Same(t, req, hctx.Request)
	assert.Equal(t, "200", hctx.Response.Type)
}

func TestSyncClient_RequestErrorWrapsAsTransportError(t *testing.T) {
	adapter := &fakeSyncClientAdapter{reqErr: assertErr("connection refused")}
	client := NewSyncClient("api-client", adapter, Address{}, nil)

	action := client.Request(&Message{Type: "GET /boom"})
	err := action(&HandlerContext{})
	require.Error(t, err)
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestSyncClient_LastResponseNilWhenUnseen(t *testing.T) {
	client := NewSyncClient("api-client", &fakeSyncClientAdapter{}, Address{}, nil)
	assert.Nil(t, client.LastResponse("never seen"))
}
