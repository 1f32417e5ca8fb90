package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: unknown file, unknown peer entry, or a chunk index that is
	// invalid for a local read.
	ErrNotFound = errors.New("not found")
	// ErrIntegrityMismatch: a fetched chunk's digest differs from the manifest.
	ErrIntegrityMismatch = errors.New("integrity mismatch")
	// ErrNoAvailablePeer: every known holder of a chunk was tried and failed.
	ErrNoAvailablePeer = errors.New("no available peer")
	// ErrProtocol: malformed, oversized or mismatched payload.
	ErrProtocol = errors.New("protocol error")
	// ErrNetwork: connection refused, reset or timed out.
	ErrNetwork = errors.New("network error")
)

// ErrorKind is the wire form of the error taxonomy.
type ErrorKind uint8

const (
	KindNone ErrorKind = iota
	KindNotFound
	KindIntegrityMismatch
	KindNoAvailablePeer
	KindProtocol
	KindNetwork
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not_found"
	case KindIntegrityMismatch:
		return "integrity_mismatch"
	case KindNoAvailablePeer:
		return "no_available_peer"
	case KindProtocol:
		return "protocol"
	case KindNetwork:
		return "network"
	default:
		return "internal"
	}
}

// KindOf classifies err against the sentinels.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrIntegrityMismatch):
		return KindIntegrityMismatch
	case errors.Is(err, ErrNoAvailablePeer):
		return KindNoAvailablePeer
	case errors.Is(err, ErrProtocol):
		return KindProtocol
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	default:
		return KindInternal
	}
}

var errInternal = errors.New("internal error")

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindIntegrityMismatch:
		return ErrIntegrityMismatch
	case KindNoAvailablePeer:
		return ErrNoAvailablePeer
	case KindProtocol:
		return ErrProtocol
	case KindNetwork:
		return ErrNetwork
	default:
		return errInternal
	}
}

type StatusCode uint8

const (
	StatusSuccess StatusCode = iota + 1
	StatusError
)

func (c StatusCode) String() string {
	switch c {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", uint8(c))
	}
}

// Status is carried by every response.
type Status struct {
	Code   StatusCode
	Kind   ErrorKind
	Detail string
}

func OK() Status {
	return Status{Code: StatusSuccess}
}

// Failure converts err into a response status.
func Failure(err error) Status {
	return Status{Code: StatusError, Kind: KindOf(err), Detail: err.Error()}
}

// Err rebuilds the error a failed status describes, wrapping the matching
// sentinel so errors.Is works on the caller's side.
func (s Status) Err() error {
	switch s.Code {
	case StatusSuccess:
		return nil
	case StatusError:
		return fmt.Errorf("%w: remote: %s", s.Kind.sentinel(), s.Detail)
	default:
		return fmt.Errorf("%w: missing response status", ErrProtocol)
	}
}
