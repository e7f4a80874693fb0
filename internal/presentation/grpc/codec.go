package grpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
)

// hybridCodec marshals protobuf messages with the proto wire format and the
// hand-rolled limits messages as JSON. It replaces the default server codec
// until proto generation is configured for the limits surface.
type hybridCodec struct{}

func (hybridCodec) Name() string { return "proto" }

func (hybridCodec) Marshal(v any) ([]byte, error) {
	if msg, ok := v.(proto.Message); ok {
		return proto.Marshal(msg)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return data, nil
}

func (hybridCodec) Unmarshal(data []byte, v any) error {
	if msg, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, msg)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}
