// Package wire defines the message envelopes exchanged with the
// server. The wire encoding itself (spec.md §1) is an external schema
// out of scope for this module; jsonCodec is a concrete, self-contained
// stand-in so the rest of the driver can be built and tested without a
// protoc step, while still going over a real gRPC transport.
package wire

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const CodecName = "typedriver-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Codec returns the JSON stand-in codec; callers wrap it in
// grpc.ForceCodec to make a call use it.
func Codec() encoding.Codec { return jsonCodec{} }
