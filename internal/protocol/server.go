package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Ankesh2004/swarmfs/pkg/p2p"
)

// HandlerFunc answers one decoded request.
type HandlerFunc func(ctx context.Context, from string, req Request) Response

// ConnHandler adapts h to a p2p.Handler: read exactly one request frame,
// answer it with one response frame, return (the transport closes the conn).
func ConnHandler(h HandlerFunc, timeout time.Duration, logger *log.Entry) p2p.Handler {
	if logger == nil {
		logger = log.WithField("component", "protocol")
	}
	return func(conn net.Conn) {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
			_ = conn.SetDeadline(time.Now().Add(timeout))
		}
		from := conn.RemoteAddr().String()
		entry := logger.WithField("from", from)

		rpc := p2p.RPC{From: from}
		if err := (p2p.FrameDecoder{}).Decode(conn, &rpc); err != nil {
			entry.WithError(err).Debug("read request")
			if errors.Is(err, p2p.ErrInvalidFrame) {
				reply(conn, entry, Message{Payload: ErrorResponse{Status: Failure(fmt.Errorf("%w: %w", ErrProtocol, err))}})
			}
			return
		}

		msg, err := decodeMessage(rpc.Payload)
		if err != nil {
			entry.WithError(err).Warn("undecodable request")
			reply(conn, entry, Message{Payload: ErrorResponse{Status: Failure(err)}})
			return
		}
		req, ok := msg.Payload.(Request)
		if !ok {
			err := fmt.Errorf("%w: %T is not a request", ErrProtocol, msg.Payload)
			reply(conn, entry, Message{ID: msg.ID, Payload: ErrorResponse{Status: Failure(err)}})
			return
		}

		resp := h(ctx, rpc.From, req)
		if resp == nil {
			resp = FailedResponse(req, errInternal)
		}
		if !reply(conn, entry, Message{ID: msg.ID, Payload: resp}) {
			// most likely the reply outgrew a frame; tell the caller why
			reply(conn, entry, Message{ID: msg.ID, Payload: FailedResponse(req, fmt.Errorf("%w: reply too large", ErrProtocol))})
		}
	}
}

func reply(conn net.Conn, entry *log.Entry, msg Message) bool {
	payload, err := encodeMessage(msg)
	if err == nil {
		err = p2p.WriteFrame(conn, payload)
	}
	if err != nil {
		entry.WithError(err).Warn("write response")
		return false
	}
	return true
}
