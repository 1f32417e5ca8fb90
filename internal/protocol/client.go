package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ankesh2004/swarmfs/pkg/p2p"
)

// Call performs one request/response exchange on its own connection:
// dial, send, receive, close. A non-success status comes back as an error
// wrapping the matching sentinel, alongside the decoded response.
func Call(ctx context.Context, addr string, req Request, timeout time.Duration) (Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := p2p.Dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrNetwork, addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// unblock reads and writes as soon as the caller gives up
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	id := uuid.NewString()
	payload, err := encodeMessage(Message{ID: id, Payload: req})
	if err != nil {
		return nil, err
	}
	if err := p2p.WriteFrame(conn, payload); err != nil {
		return nil, transportError(err, "send %s to %s", req.Kind(), addr)
	}

	var rpc p2p.RPC
	if err := (p2p.FrameDecoder{}).Decode(conn, &rpc); err != nil {
		return nil, transportError(err, "read %s reply from %s", req.Kind(), addr)
	}
	msg, err := decodeMessage(rpc.Payload)
	if err != nil {
		return nil, err
	}

	resp, ok := msg.Payload.(Response)
	if !ok {
		return nil, fmt.Errorf("%w: %s replied with %T", ErrProtocol, addr, msg.Payload)
	}
	if er, ok := resp.(ErrorResponse); ok && (msg.ID == "" || msg.ID == id) {
		return nil, er.Status.Err()
	}
	if msg.ID != id {
		return nil, fmt.Errorf("%w: response id %q does not match request id %q", ErrProtocol, msg.ID, id)
	}
	if resp.Kind() != req.Kind() {
		return nil, fmt.Errorf("%w: %s answered with %s", ErrProtocol, req.Kind(), resp.Kind())
	}
	return resp, resp.Result().Err()
}

// Invoke is Call with the response asserted to the expected payload type.
func Invoke[T Response](ctx context.Context, addr string, req Request, timeout time.Duration) (T, error) {
	var zero T
	resp, err := Call(ctx, addr, req, timeout)
	if err != nil {
		return zero, err
	}
	typed, ok := resp.(T)
	if !ok {
		return zero, fmt.Errorf("%w: unexpected %T for %s", ErrProtocol, resp, req.Kind())
	}
	return typed, nil
}

func transportError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, p2p.ErrInvalidFrame) {
		return fmt.Errorf("%w: %s: %w", ErrProtocol, msg, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrNetwork, msg, err)
}
