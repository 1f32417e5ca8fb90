package p2p

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidFrame is returned for frames with an unknown marker or a length
// outside (0, MaxMessageSize].
var ErrInvalidFrame = errors.New("invalid frame")

const frameHeaderSize = 5

type Decoder interface {
	Decode(io.Reader, *RPC) error
}

// FrameDecoder reads [type (1 byte)] [length (4 bytes LE)] [payload (length bytes)].
// io.ReadFull stops exactly at the end of the payload, so nothing belonging
// to the next frame is ever consumed.
type FrameDecoder struct{}

func (d FrameDecoder) Decode(r io.Reader, rpc *RPC) error {
	var marker [1]byte
	if _, err := io.ReadFull(r, marker[:]); err != nil {
		return err
	}
	if marker[0] != IncomingMessage {
		return fmt.Errorf("%w: unknown message type %d", ErrInvalidFrame, marker[0])
	}

	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return fmt.Errorf("failed to read message length: %w", err)
	}

	// never allocate more than MaxMessageSize for a peer-supplied length
	if length == 0 || length > MaxMessageSize {
		return fmt.Errorf("%w: length %d (must be between 1 and %d bytes)", ErrInvalidFrame, length, MaxMessageSize)
	}

	rpc.Payload = make([]byte, int(length))
	if _, err := io.ReadFull(r, rpc.Payload); err != nil {
		return fmt.Errorf("failed to read message payload (%d bytes): %w", length, err)
	}
	return nil
}

// WriteFrame writes payload as one frame with a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 || len(payload) > MaxMessageSize {
		return fmt.Errorf("%w: payload of %d bytes (must be between 1 and %d bytes)", ErrInvalidFrame, len(payload), MaxMessageSize)
	}

	frame := make([]byte, frameHeaderSize+len(payload))
	frame[0] = IncomingMessage
	binary.LittleEndian.PutUint32(frame[1:frameHeaderSize], uint32(len(payload)))
	copy(frame[frameHeaderSize:], payload)

	n, err := w.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return io.ErrShortWrite
	}
	return nil
}
