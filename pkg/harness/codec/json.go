// Package codec implements message payload encode/decode helpers shared by
// the protocol adapters under pkg/protocols. The harness core treats
// Message.Payload as opaque bytes; adapters choose a codec to (de)serialize
// domain values into that slice.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSON is the default, reference codec: plain encoding/json, the same
// marshaling tarsy uses throughout its API layer (gin's c.JSON, the events
// package's json.Marshal of outbound frames).
type JSON struct{}

// Encode marshals v into bytes.
func (JSON) Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return b, nil
}

// Decode unmarshals data into v, which must be a pointer.
func (JSON) Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("codec: decode: %w", err)
	}
	return nil
}

// Pretty renders data as indented JSON, or returns data unchanged as a
// string when it is not valid JSON.
func Pretty(data []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return string(data)
	}
	return buf.String()
}

// Transformer mutates a decoded value and re-encodes it, the shape a
// `transform` handler body takes when it needs typed access to the payload
// instead of raw bytes.
type Transformer[T any] struct {
	Codec JSON
}

// Apply decodes payload into a T, runs fn against it, and re-encodes the
// (possibly mutated) result.
func (t Transformer[T]) Apply(payload []byte, fn func(*T) error) ([]byte, error) {
	var v T
	if err := t.Codec.Decode(payload, &v); err != nil {
		return nil, err
	}
	if err := fn(&v); err != nil {
		return nil, err
	}
	return t.Codec.Encode(v)
}
