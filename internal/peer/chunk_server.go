package peer

import (
	"context"
	"fmt"

	"github.com/Ankesh2004/swarmfs/internal/protocol"
	"github.com/Ankesh2004/swarmfs/internal/storage"
)

// ChunkServer answers CHUNK_DOWNLOAD from the local store. Only chunks the
// catalog marks as owned are served, so a file still being downloaded is
// shared piece by piece as it lands.
type ChunkServer struct {
	Store     *storage.Store
	Catalog   *storage.Catalog
	ChunkSize int64
}

// ServeChunk reads chunk index of name with a positioned read.
func (c *ChunkServer) ServeChunk(name string, index int) ([]byte, error) {
	length, err := c.Catalog.Servable(name, index)
	if err != nil {
		return nil, err
	}
	offset, size, err := protocol.ChunkSpan(index, length, c.ChunkSize)
	if err != nil {
		return nil, err
	}
	return c.Store.ReadAt(name, offset, size)
}

func (c *ChunkServer) handle(_ context.Context, _ string, req protocol.Request) protocol.Response {
	switch v := req.(type) {
	case protocol.ChunkDownloadRequest:
		data, err := c.ServeChunk(v.FileName, v.Chunk)
		if err != nil {
			return protocol.FailedResponse(req, err)
		}
		return protocol.ChunkDownloadResponse{Status: protocol.OK(), Data: data}
	default:
		return protocol.FailedResponse(req, fmt.Errorf("%w: peers only serve %s", protocol.ErrProtocol, protocol.KindChunkDownload))
	}
}
