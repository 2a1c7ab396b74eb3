package harness

import "context"

// SyncClientAdapter is implemented by a request/response transport client
// (spec §4.5, §6). getClient exposes the adapter's native client for steps
// that need protocol-specific escape hatches (e.g. setting HTTP headers).
type SyncClientAdapter interface {
	Connect(ctx context.Context, addr Address) error
	Request(ctx context.Context, msg *Message) (*Message, error)
	Close(ctx context.Context) error
	NativeClient() any
}

// SyncServerAdapter is implemented by a mock/proxy request/response server
// (spec §4.5). IsProxy reports whether it was constructed with a target
// address to forward to (proxy mode) or not (pure mock mode).
type SyncServerAdapter interface {
	Listen(ctx context.Context, addr Address) error
	Close(ctx context.Context) error
	IsProxy() bool
	// SetHandler installs the function invoked for each inbound request; it
	// returns the response message to write back, or nil if the request was
	// dropped.
	SetHandler(fn func(ctx context.Context, msg *Message) (*Message, error))
}

// SyncProtocol groups the client/server constructors for one wire protocol,
// the interface concrete packages like protocols/http and protocols/grpc
// implement (spec §6).
type SyncProtocol interface {
	NewClient() SyncClientAdapter
	NewServer(targetAddress *Address) SyncServerAdapter
}

// AsyncConnection is one logical connection on an async client or server
// side: a bidirectional message/event stream plus a stable link id (spec
// §4.6).
type AsyncConnection interface {
	LinkID() string
	Send(ctx context.Context, msg *Message) error
	Close(ctx context.Context) error
	// OnClose registers fn to run exactly once, when the connection stops
	// being usable — either an explicit Close() or the peer disconnecting
	// (spec §4.6's connection wrapper "fan-out onClose").
	OnClose(fn func())
}

// AsyncClientAdapter dials a single long-lived connection.
type AsyncClientAdapter interface {
	Connect(ctx context.Context, addr Address) (AsyncConnection, error)
	// OnMessage registers the callback invoked for every inbound message on
	// the connection, in arrival order.
	OnMessage(fn func(msg *Message))
}

// AsyncServerAdapter accepts many connections, each identified by a link id
// once a `link` handler binds one (spec §4.6).
type AsyncServerAdapter interface {
	Listen(ctx context.Context, addr Address) error
	Close(ctx context.Context) error
	IsProxy() bool
	// OnConnection is invoked once per accepted connection; the callback
	// wires the connection's inbound message stream to the component's hook
	// dispatch and returns when the connection should be treated as open
	// (i.e. as soon as wiring completes, not when the connection closes).
	OnConnection(fn func(conn AsyncConnection, onMessage func(fn func(msg *Message))))
	// Broadcast sends msg to every currently open connection, or, if linkID
	// is non-empty, to just the connection bound to that link.
	Broadcast(ctx context.Context, linkID string, msg *Message) error
}

// AsyncProtocol groups the client/server constructors for one streaming
// wire protocol (WebSocket, raw TCP, gRPC server-streaming).
type AsyncProtocol interface {
	NewClient() AsyncClientAdapter
	NewServer(targetAddress *Address) AsyncServerAdapter
}

// Publisher publishes messages to named topics (spec §4.7).
type Publisher interface {
	Publish(ctx context.Context, topic string, msg *Message) error
	PublishBatch(ctx context.Context, topic string, msgs []*Message) error
}

// Subscriber delivers messages published to subscribed topics, in arrival
// order per topic (spec §4.7, §5).
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, fn func(msg *Message)) error
	Unsubscribe(ctx context.Context, topic string) error
}

// MQAdapter groups the publish/subscribe sides of one message-queue backend
// (spec §6).
type MQAdapter interface {
	Connect(ctx context.Context, addr Address) error
	Close(ctx context.Context) error
	Publisher
	Subscriber
}

// DataSourceAdapter exposes an external data source (typically a database)
// to assert/transform handlers without the core depending on any particular
// driver (spec §4.8, §6).
type DataSourceAdapter interface {
	Connect(ctx context.Context, addr Address) error
	Close(ctx context.Context) error
	// NativeClient returns the adapter's underlying driver handle (e.g. the
	// Postgres adapter's *pgxpool.Pool) for handlers that need direct query
	// access.
	NativeClient() any
	// IsConnected reports current connectivity, used by health-style
	// assertions.
	IsConnected(ctx context.Context) bool
	// On registers a callback for a driver-level event (e.g. a Postgres
	// LISTEN/NOTIFY channel); returns an unsubscribe function.
	On(ctx context.Context, event string, fn func(payload []byte)) (func(), error)
}
