package rpc

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec lets Connect carry plain Go structs instead of generated protobuf messages.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	return json.Unmarshal(data, msg)
}

// WithJSON is the codec option both handlers and clients must use.
func WithJSON() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
