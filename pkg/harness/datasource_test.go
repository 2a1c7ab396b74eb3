package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ DataSourceAdapter = (*fakeDataSourceAdapter)(nil)

type fakeDataSourceAdapter struct {
	connected bool
	closed    bool
	isUp      bool
	native    any
	handlers  map[string]func(payload []byte)
}

func (f *fakeDataSourceAdapter) Connect(ctx context.Context, addr Address) error {
	f.connected = true
	f.isUp = true
	return nil
}

func (f *fakeDataSourceAdapter) Close(ctx context.Context) error {
	f.closed = true
	f.isUp = false
	return nil
}

func (f *fakeDataSourceAdapter) NativeClient() any { return f.native }

func (f *fakeDataSourceAdapter) IsConnected(ctx context.Context) bool { return f.isUp }

func (f *fakeDataSourceAdapter) On(ctx context.Context, event string, fn func(payload []byte)) (func(), error) {
	if f.handlers == nil {
		f.handlers = make(map[string]func(payload []byte))
	}
	f.handlers[event] = fn
	return func() { delete(f.handlers, event) }, nil
}

func TestDataSource_IsNotANetworkComponent(t *testing.T) {
	ds := NewDataSource("pg", &fakeDataSourceAdapter{}, Address{}, nil)
	assert.False(t, ds.isNetworkComponent(), "DataSource must start ahead of network components in Scenario.startOrder")
}

func TestDataSource_IsConnectedReflectsAdapterState(t *testing.T) {
	adapter := &fakeDataSourceAdapter{native: "pool-handle"}
	ds := NewDataSource("pg", adapter, Address{}, nil)

	assert.False(t, ds.IsConnected(context.Background()))
	require.NoError(t, ds.Start(context.Background()))
	assert.True(t, ds.IsConnected(context.Background()))
	assert.Equal(t, "pool-handle", ds.NativeClient())

	require.NoError(t, ds.Stop(context.Background()))
	assert.False(t, ds.IsConnected(context.Background()))
}

func TestDataSource_OnRoutesNotificationThroughWaitingHook(t *testing.T) {
	adapter := &fakeDataSourceAdapter{}
	ds := NewDataSource("pg", adapter, Address{}, nil)
	require.NoError(t, ds.Start(context.Background()))

	unsubscribe, err := ds.On(context.Background(), "order_created")
	require.NoError(t, err)
	require.NotNil(t, unsubscribe)

	step := &Step{ID: "wait-1"}
	hook := newHook(step, func(m *Message) bool { return m.Type == "order_created" }, false, true)
	ds.registerHook(hook)

	adapter.handlers["order_created"]([]byte(`{"id":42}`))

	msg, err := hook.cell.await(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "order_created", msg.Type)
	assert.Equal(t, []byte(`{"id":42}`), msg.Payload)

	unsubscribe()
	_, stillThere := adapter.handlers["order_created"]
	assert.False(t, stillThere)
}
