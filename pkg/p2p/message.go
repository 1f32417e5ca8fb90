package p2p

const IncomingMessage = 0x1

// MaxMessageSize caps a single frame's payload. Chunk bytes travel inside the
// frame, so the configured chunk size has to stay well below this.
const MaxMessageSize = 2 * 1024 * 1024

// RPC holds one framed payload read off a connection
type RPC struct {
	From    string // remote address of the connection
	Payload []byte
}
