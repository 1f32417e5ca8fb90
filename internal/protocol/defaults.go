package protocol

import "time"

const (
	// DefaultChunkSize must be the same on the tracker and every peer: the
	// tracker derives chunk counts from it.
	DefaultChunkSize int64 = 256 * 1024

	// MaxChunkSize keeps a chunk plus its envelope inside one p2p frame.
	MaxChunkSize int64 = 1024 * 1024

	DefaultConcurrency = 4
	DefaultCallTimeout = 10 * time.Second
)
