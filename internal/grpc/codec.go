package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content subtype for the JSON codec. Clients select
// it with grpc.CallContentSubtype(codecName).
const codecName = "json"

// jsonCodec carries the dispatch wire types as JSON frames. Inputs and
// values are schemaless, so JSON fits the payloads better than protobuf
// and keeps the wire readable.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
