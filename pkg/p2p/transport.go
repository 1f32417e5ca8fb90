package p2p

import "net"

// Handler serves exactly one accepted connection. The transport closes the
// connection once the handler returns.
type Handler func(conn net.Conn)

// Transport is the listening side shared by the tracker and the peer chunk server.
type Transport interface {
	Addr() string
	ListenAndAccept() error
	Close() error
}
