package tracker

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Ankesh2004/swarmfs/internal/protocol"
	"github.com/Ankesh2004/swarmfs/pkg/p2p"
)

type Options struct {
	ListenAddr    string
	ChunkSize     int64
	CallTimeout   time.Duration // per-connection read/handle/write deadline
	StatsInterval time.Duration // 0 disables the periodic stats line
	Logger        *log.Entry
}

// Server answers REGISTER, FILE_LIST, FILE_LOCATIONS and CHUNK_REGISTER
// against one Registry.
type Server struct {
	Options

	Registry  *Registry
	transport *p2p.TCPTransport

	quitChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewServer(options Options) *Server {
	if options.ChunkSize <= 0 {
		options.ChunkSize = protocol.DefaultChunkSize
	}
	if options.CallTimeout <= 0 {
		options.CallTimeout = protocol.DefaultCallTimeout
	}
	if options.Logger == nil {
		options.Logger = log.WithField("component", "tracker")
	}

	s := &Server{
		Options:     options,
		Registry:    NewRegistry(options.ChunkSize),
		quitChannel: make(chan struct{}),
	}
	s.transport = p2p.NewTCPTransport(p2p.TCPTransportOptions{
		ListenAddr: options.ListenAddr,
		Handler:    protocol.ConnHandler(s.handle, options.CallTimeout, options.Logger),
		Logger:     options.Logger,
	})
	return s
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() string {
	return s.transport.Addr()
}

func (s *Server) Start() error {
	if err := s.transport.ListenAndAccept(); err != nil {
		return err
	}
	s.Logger.WithFields(log.Fields{
		"addr":       s.Addr(),
		"chunk_size": s.ChunkSize,
	}).Info("tracker started")

	if s.StatsInterval > 0 {
		s.wg.Add(1)
		go s.statsLoop()
	}
	return nil
}

func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.quitChannel)
		err = s.transport.Close()
		s.wg.Wait()
	})
	return err
}

func (s *Server) statsLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			st := s.Registry.Stats()
			s.Logger.WithFields(log.Fields{
				"files":    st.Files,
				"peers":    st.Peers,
				"holdings": st.Holdings,
			}).Info("registry stats")
		case <-s.quitChannel:
			return
		}
	}
}

// -------- Message Routing --------

func (s *Server) handle(_ context.Context, from string, req protocol.Request) protocol.Response {
	entry := s.Logger.WithFields(log.Fields{"from": from, "kind": req.Kind()})
	entry.Debug("request")

	switch v := req.(type) {
	case protocol.RegisterRequest:
		return s.handleRegister(entry, v)
	case protocol.FileListRequest:
		return s.handleFileList(v)
	case protocol.FileLocationsRequest:
		return s.handleFileLocations(v)
	case protocol.ChunkRegisterRequest:
		return s.handleChunkRegister(entry, v)
	default:
		// CHUNK_DOWNLOAD goes to peers, not here
		return protocol.FailedResponse(req, fmt.Errorf("%w: tracker does not serve %s", protocol.ErrProtocol, req.Kind()))
	}
}

func (s *Server) handleRegister(entry *log.Entry, req protocol.RegisterRequest) protocol.Response {
	res, err := s.Registry.RegisterFiles(req.Endpoint, req.Files)
	if err != nil {
		entry.WithError(err).Warn("register rejected")
		return protocol.FailedResponse(req, err)
	}
	entry.WithFields(log.Fields{
		"peer":      req.Endpoint.String(),
		"files":     len(req.Files),
		"conflicts": len(res.Conflicts),
	}).Info("peer registered")
	return protocol.RegisterResponse{Status: protocol.OK(), Conflicts: res.Conflicts}
}

func (s *Server) handleFileList(req protocol.FileListRequest) protocol.Response {
	files := s.Registry.ListFiles()
	if req.Pattern == "" {
		return protocol.FileListResponse{Status: protocol.OK(), Files: files}
	}

	matched := make([]protocol.FileInfo, 0, len(files))
	for _, f := range files {
		ok, err := path.Match(req.Pattern, f.Name)
		if err != nil {
			return protocol.FailedResponse(req, fmt.Errorf("%w: pattern %q: %w", protocol.ErrProtocol, req.Pattern, err))
		}
		if ok {
			matched = append(matched, f)
		}
	}
	return protocol.FileListResponse{Status: protocol.OK(), Files: matched}
}

func (s *Server) handleFileLocations(req protocol.FileLocationsRequest) protocol.Response {
	loc, err := s.Registry.FileLocations(req.FileName)
	if err != nil {
		return protocol.FailedResponse(req, err)
	}
	return protocol.FileLocationsResponse{
		Status:    protocol.OK(),
		Endpoints: loc.Availability,
		Algorithm: loc.Algorithm,
		Hashes:    loc.Hashes,
		Length:    loc.Length,
	}
}

func (s *Server) handleChunkRegister(entry *log.Entry, req protocol.ChunkRegisterRequest) protocol.Response {
	if err := s.Registry.RegisterChunk(req.Endpoint, req.FileName, req.Chunk); err != nil {
		entry.WithError(err).Debug("chunk register rejected")
		return protocol.FailedResponse(req, err)
	}
	return protocol.ChunkRegisterResponse{Status: protocol.OK()}
}
