package connectutil

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// JSONCodec serializes plain Go structs as JSON. It replaces connect's
// protobuf JSON codec for services whose messages are not generated types.
type JSONCodec struct{}

var _ connect.Codec = JSONCodec{}

// Name is the codec name used in content types.
func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("json codec: %w", err)
	}
	return nil
}
