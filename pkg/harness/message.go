// Package harness implements the component/hook/step runtime that drives a
// scenario: it starts components, runs test cases through a three-phase
// executor, and records the resulting interactions.
package harness

import "fmt"

// Message is the wire-level artifact passed between components. Type is the
// protocol-defined discriminator (an HTTP "METHOD /path" string, a gRPC
// method name, an application message/event name). Payload is opaque to the
// core; adapters and user handlers marshal it with whatever codec the
// protocol expects.
type Message struct {
	Type    string
	Payload []byte
	TraceID string
}

// Clone returns a copy of m with its own payload slice, so that fan-out to
// multiple hooks never shares a mutable backing array (see DESIGN.md,
// "sync client response fan-out").
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Payload != nil {
		cp.Payload = make([]byte, len(m.Payload))
		copy(cp.Payload, m.Payload)
	}
	return &cp
}

// Address identifies a network endpoint a component binds to or dials.
type Address struct {
	Host string
	Port int
	Path string
	TLS  bool
}

func (a Address) String() string {
	scheme := "tcp"
	if a.TLS {
		scheme = "tls"
	}
	if a.Path != "" {
		return fmt.Sprintf("%s://%s:%d%s", scheme, a.Host, a.Port, a.Path)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, a.Host, a.Port)
}

// HostPort renders "host:port", the form most net/http and net.Dial style
// adapters want.
func (a Address) HostPort() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}
