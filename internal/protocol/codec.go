package protocol

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

func encodeMessage(msg Message) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(&msg); err != nil {
		return nil, fmt.Errorf("%w: encode message: %w", ErrProtocol, err)
	}
	return buf.Bytes(), nil
}

func decodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("%w: decode message: %w", ErrProtocol, err)
	}
	return msg, nil
}
