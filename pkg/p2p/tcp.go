package p2p

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ============ TCP Transport options (configurations required to create a transport) ============
type TCPTransportOptions struct {
	ListenAddr string // "host:port"; port 0 picks a free port
	Handler    Handler
	Logger     *log.Entry
}

// ============= TCP Transport =================
var _ Transport = (*TCPTransport)(nil)

type TCPTransport struct {
	TCPTransportOptions
	listener net.Listener

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewTCPTransport(options TCPTransportOptions) *TCPTransport {
	if options.Logger == nil {
		options.Logger = log.WithField("component", "p2p")
	}
	return &TCPTransport{
		TCPTransportOptions: options,
	}
}

// Addr returns the bound listen address, or the configured one before ListenAndAccept.
func (t *TCPTransport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.ListenAddr
}

// Incoming connections
func (t *TCPTransport) ListenAndAccept() error {
	if t.Handler == nil {
		return errors.New("tcp transport: no handler configured")
	}

	lc := net.ListenConfig{Control: setSocketReuseAddr}
	ln, err := lc.Listen(context.Background(), "tcp", t.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", t.ListenAddr, err)
	}

	t.mu.Lock()
	t.listener = ln
	t.mu.Unlock()

	go t.acceptLoop(ln)
	t.Logger.WithField("addr", ln.Addr().String()).Info("listening")
	return nil
}

// Close stops accepting and waits for in-flight handlers to return.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	if t.closed || t.listener == nil {
		t.closed = true
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	ln := t.listener
	t.mu.Unlock()

	err := ln.Close()
	t.wg.Wait()
	return err
}

func (t *TCPTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *TCPTransport) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if t.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			t.Logger.WithError(err).Warn("accept failed")
			continue
		}

		// one goroutine per connection, one request per connection
		t.wg.Add(1)
		go t.handleConnection(conn)
	}
}

func (t *TCPTransport) handleConnection(conn net.Conn) {
	defer t.wg.Done()
	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			t.Logger.WithError(err).Debug("close connection")
		}
	}()
	t.Handler(conn)
}

// Dial opens a fresh outbound connection. Callers own the connection and
// close it after a single exchange.
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}
