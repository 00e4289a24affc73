package connection

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// pingFrame is the keepalive control frame, encoded once.
var pingFrame = []byte(`{"type":"ping"}`)

var errNotObject = errors.New("frame is not a JSON object")

// decodeFrame parses a single inbound frame. Only JSON objects are events.
func decodeFrame(data []byte) (InboundEvent, error) {
	var ev *InboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return InboundEvent{}, fmt.Errorf("decode frame: %w", err)
	}
	if ev == nil {
		return InboundEvent{}, fmt.Errorf("decode frame: %w", errNotObject)
	}
	return *ev, nil
}

// encodePayload serializes an outbound payload. Byte slices and
// json.RawMessage-like values are passed through untouched.
func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case jsoniter.RawMessage:
		return p, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}
