package harness

import (
	"context"
	"log/slog"
)

// DataSource is a component wrapping an external data source (spec §4.8):
// assert/transform handlers use NativeClient() for direct queries, and
// On(event, fn) lets an onEvent-style step react to driver-level
// notifications (e.g. Postgres LISTEN/NOTIFY) the same way an async
// component reacts to inbound messages.
type DataSource struct {
	*BaseComponent
	adapter DataSourceAdapter
	addr    Address
}

// NewDataSource constructs a DataSource connecting to addr via adapter.
func NewDataSource(name string, adapter DataSourceAdapter, addr Address, logger *slog.Logger) *DataSource {
	d := &DataSource{adapter: adapter, addr: addr}
	d.BaseComponent = NewBaseComponent(name, logger,
		func(ctx context.Context) error { return adapter.Connect(ctx, addr) },
		func(ctx context.Context) error { return adapter.Close(ctx) },
	)
	return d
}

// isNetworkComponent marks DataSource as non-network so Scenario.startAll
// starts it ahead of sync/async clients and servers (spec §4.1's "start
// non-network components first... prevents clients from racing servers").
func (d *DataSource) isNetworkComponent() bool { return false }

// NativeClient exposes the adapter's underlying driver handle (e.g. the
// Postgres adapter's *pgxpool.Pool) for handlers that need direct query
// access.
func (d *DataSource) NativeClient() any {
	return d.adapter.NativeClient()
}

// IsConnected reports current connectivity, used by health-style assertions.
func (d *DataSource) IsConnected(ctx context.Context) bool {
	return d.adapter.IsConnected(ctx)
}

// On registers a callback for a driver-level event and routes it through
// the same hook-dispatch path async components use, so onEvent/waitEvent
// steps work uniformly across data sources and wire adapters.
func (d *DataSource) On(ctx context.Context, event string) (func(), error) {
	return d.adapter.On(ctx, event, func(payload []byte) {
		d.dispatch(&Message{Type: event, Payload: payload})
	})
}

func (d *DataSource) dispatch(msg *Message) {
	for _, h := range d.findAllMatchingHooks(msg) {
		hctx := &HandlerContext{Hook: h, Component: d.Name()}
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
