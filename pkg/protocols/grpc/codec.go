// Package grpc implements harness.SyncProtocol (unary) and
// harness.AsyncProtocol (bidirectional streaming) over gRPC without any
// protoc-generated message types. codeready-toolchain-tarsy's
// pkg/agent/llm_grpc.go depends on generated bindings (llmv1) that aren't
// present anywhere in the retrieval pack, so instead of fabricating fake
// generated code this package registers a generic "raw bytes" codec — the
// same technique generic gRPC proxies use — letting the harness speak any
// method name against any server without compiled .proto schemas.
package grpc

import (
	"google.golang.org/grpc/encoding"
)

const codecName = "harness-raw"

// rawCodec implements encoding.Codec by passing []byte straight through,
// so harness.Message.Payload travels as the wire-level protobuf message
// body unchanged. Registered once via init() per grpc-go's encoding
// package convention.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	if f, ok := v.(*frame); ok {
		return f.data, nil
	}
	return nil, errNotBytes
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	switch p := v.(type) {
	case *[]byte:
		*p = append([]byte(nil), data...)
		return nil
	case *frame:
		p.data = append([]byte(nil), data...)
		return nil
	default:
		return errNotBytes
	}
}

func (rawCodec) Name() string { return codecName }

// frame is the pointer target rawCodec unmarshals into when the call site
// wants a named type rather than a bare []byte.
type frame struct{ data []byte }

var errNotBytes = rawCodecError("harness/protocols/grpc: value is not []byte or *frame")

type rawCodecError string

func (e rawCodecError) Error() string { return string(e) }

func init() {
	encoding.RegisterCodec(rawCodec{})
}
