// Package peer is a swarm participant: it shares the files in its mount
// directory and downloads files other peers share.
package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Ankesh2004/swarmfs/internal/integrity"
	"github.com/Ankesh2004/swarmfs/internal/protocol"
	"github.com/Ankesh2004/swarmfs/internal/storage"
	"github.com/Ankesh2004/swarmfs/pkg/p2p"
)

const DefaultListenAddr = "127.0.0.1:0"

type Options struct {
	MountDir      string
	ListenAddr    string // defaults to DefaultListenAddr, a free local port
	AdvertiseHost string // host other peers dial; defaults to the listener's host
	TrackerAddr   string
	ChunkSize     int64
	Algorithm     string
	Concurrency   int
	CallTimeout   time.Duration
	Logger        *log.Entry

	// Tracker and Fetcher replace the RPC implementations when set.
	Tracker TrackerClient
	Fetcher ChunkFetcher
	Picker  Picker
}

type Node struct {
	Options

	Store      *storage.Store
	Catalog    *storage.Catalog
	Chunks     *ChunkServer
	Downloader *Downloader

	verifier  integrity.Verifier
	transport *p2p.TCPTransport
	self      protocol.Endpoint
}

func NewNode(options Options) (*Node, error) {
	if options.MountDir == "" {
		return nil, errors.New("peer: mount directory is required")
	}
	if options.ListenAddr == "" {
		options.ListenAddr = DefaultListenAddr
	}
	if options.ChunkSize <= 0 {
		options.ChunkSize = protocol.DefaultChunkSize
	}
	if options.ChunkSize > protocol.MaxChunkSize {
		return nil, fmt.Errorf("peer: chunk size %d exceeds %d", options.ChunkSize, protocol.MaxChunkSize)
	}
	if options.CallTimeout <= 0 {
		options.CallTimeout = protocol.DefaultCallTimeout
	}
	if options.Logger == nil {
		options.Logger = log.WithField("component", "peer")
	}
	if options.Tracker == nil {
		if options.TrackerAddr == "" {
			return nil, errors.New("peer: tracker address is required")
		}
		options.Tracker = RPCTracker{Addr: options.TrackerAddr, Timeout: options.CallTimeout}
	}
	if options.Fetcher == nil {
		options.Fetcher = RPCFetcher{Timeout: options.CallTimeout}
	}

	verifier, err := integrity.New(options.Algorithm)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewStore(options.MountDir)
	if err != nil {
		return nil, err
	}
	catalog := storage.NewCatalog()

	n := &Node{
		Options:  options,
		Store:    store,
		Catalog:  catalog,
		verifier: verifier,
		Chunks: &ChunkServer{
			Store:     store,
			Catalog:   catalog,
			ChunkSize: options.ChunkSize,
		},
	}
	n.transport = p2p.NewTCPTransport(p2p.TCPTransportOptions{
		ListenAddr: options.ListenAddr,
		Handler:    protocol.ConnHandler(n.Chunks.handle, options.CallTimeout, options.Logger),
		Logger:     options.Logger,
	})
	return n, nil
}

// Start binds the chunk server. The bound address becomes this peer's
// endpoint in every tracker call.
func (n *Node) Start() error {
	if err := n.transport.ListenAndAccept(); err != nil {
		return err
	}
	self, err := n.advertised()
	if err != nil {
		n.transport.Close()
		return err
	}
	n.self = self
	n.Logger = n.Logger.WithField("self", self.String())

	n.Downloader = NewDownloader(DownloaderOptions{
		Self:        self,
		Tracker:     n.Tracker,
		Fetcher:     n.Fetcher,
		Store:       n.Store,
		Catalog:     n.Catalog,
		ChunkSize:   n.ChunkSize,
		Concurrency: n.Concurrency,
		Picker:      n.Picker,
		Logger:      n.Logger.WithField("component", "downloader"),
	})
	return nil
}

func (n *Node) advertised() (protocol.Endpoint, error) {
	ep, err := protocol.ParseEndpoint(n.transport.Addr())
	if err != nil {
		return protocol.Endpoint{}, err
	}
	switch {
	case n.AdvertiseHost != "":
		ep.Host = n.AdvertiseHost
	case net.ParseIP(ep.Host) != nil && net.ParseIP(ep.Host).IsUnspecified():
		// bound to all interfaces; loopback is the only address we know works
		ep.Host = "127.0.0.1"
	}
	return ep, nil
}

func (n *Node) Stop() error {
	return n.transport.Close()
}

func (n *Node) Self() protocol.Endpoint {
	return n.self
}

// Mount hashes every regular file in the mount directory, marks each as
// fully owned and registers the batch with the tracker. Files already being
// downloaded are left alone.
func (n *Node) Mount(ctx context.Context) ([]protocol.FileManifest, error) {
	files, err := n.Store.List()
	if err != nil {
		return nil, err
	}

	manifests := make([]protocol.FileManifest, 0, len(files))
	for _, f := range files {
		if e, ok := n.Catalog.Lookup(f.Name); ok && !e.Complete() {
			continue
		}
		m, err := n.Store.Manifest(f.Name, n.ChunkSize, n.verifier)
		if err != nil {
			n.Logger.WithError(err).WithField("file", f.Name).Warn("skipping unreadable file")
			continue
		}
		n.Catalog.AddComplete(m)
		manifests = append(manifests, m)
	}
	if len(manifests) == 0 {
		n.Logger.WithField("dir", n.MountDir).Info("nothing to share")
		return nil, nil
	}

	conflicts, err := n.Tracker.Register(ctx, n.self, manifests)
	if err != nil {
		return nil, fmt.Errorf("register %d files: %w", len(manifests), err)
	}
	for _, name := range conflicts {
		n.Logger.WithField("file", name).Warn("local copy differs from the tracker's record, only matching chunks are advertised")
	}
	n.Logger.WithFields(log.Fields{"dir": n.MountDir, "files": len(manifests)}).Info("mounted")
	return manifests, nil
}

// ListFiles asks the tracker which files exist.
func (n *Node) ListFiles(ctx context.Context, pattern string) ([]protocol.FileInfo, error) {
	return n.Tracker.ListFiles(ctx, pattern)
}

func (n *Node) Download(ctx context.Context, name string) (*Download, error) {
	if n.Downloader == nil {
		return nil, errors.New("peer: node not started")
	}
	return n.Downloader.Download(ctx, name)
}

func (n *Node) Progress(name string) (float64, bool) {
	if n.Downloader == nil {
		return 0, false
	}
	return n.Downloader.Progress(name)
}
