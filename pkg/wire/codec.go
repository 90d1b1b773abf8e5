package wire

import (
	"encoding/json"
	"fmt"
)

// Encode serializes a message to its compact JSON wire form, without
// the trailing frame delimiter (the transport layer adds it).
func Encode(msg *Message) ([]byte, error) {
	if !msg.CommuniqueType.IsValid() {
		return nil, fmt.Errorf("invalid communique type: %q", msg.CommuniqueType)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// Decode parses one JSON document into a message. Unknown communique
// types are rejected; unknown header or body fields are ignored for
// forward compatibility with newer bridge firmware.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	if !msg.CommuniqueType.IsValid() {
		return nil, fmt.Errorf("invalid communique type: %q", msg.CommuniqueType)
	}
	return &msg, nil
}
