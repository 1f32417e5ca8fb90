package peer

import (
	"context"
	"time"

	"github.com/Ankesh2004/swarmfs/internal/protocol"
)

// TrackerClient is the peer's view of the tracker.
type TrackerClient interface {
	Register(ctx context.Context, self protocol.Endpoint, manifests []protocol.FileManifest) (conflicts []string, err error)
	ListFiles(ctx context.Context, pattern string) ([]protocol.FileInfo, error)
	FileLocations(ctx context.Context, name string) (protocol.Locations, error)
	RegisterChunk(ctx context.Context, self protocol.Endpoint, name string, index int) error
}

// ChunkFetcher downloads one chunk from one peer. It does not verify the
// bytes it returns.
type ChunkFetcher interface {
	FetchChunk(ctx context.Context, from protocol.Endpoint, name string, index int) ([]byte, error)
}

// RPCTracker talks to a tracker over the swarm protocol, one connection per call.
type RPCTracker struct {
	Addr    string
	Timeout time.Duration
}

func (t RPCTracker) Register(ctx context.Context, self protocol.Endpoint, manifests []protocol.FileManifest) ([]string, error) {
	resp, err := protocol.Invoke[protocol.RegisterResponse](ctx, t.Addr, protocol.RegisterRequest{
		Endpoint: self,
		Files:    manifests,
	}, t.Timeout)
	return resp.Conflicts, err
}

func (t RPCTracker) ListFiles(ctx context.Context, pattern string) ([]protocol.FileInfo, error) {
	resp, err := protocol.Invoke[protocol.FileListResponse](ctx, t.Addr, protocol.FileListRequest{Pattern: pattern}, t.Timeout)
	return resp.Files, err
}

func (t RPCTracker) FileLocations(ctx context.Context, name string) (protocol.Locations, error) {
	resp, err := protocol.Invoke[protocol.FileLocationsResponse](ctx, t.Addr, protocol.FileLocationsRequest{FileName: name}, t.Timeout)
	if err != nil {
		return protocol.Locations{}, err
	}
	return protocol.Locations{
		Availability: resp.Endpoints,
		Algorithm:    resp.Algorithm,
		Hashes:       resp.Hashes,
		Length:       resp.Length,
	}, nil
}

func (t RPCTracker) RegisterChunk(ctx context.Context, self protocol.Endpoint, name string, index int) error {
	_, err := protocol.Call(ctx, t.Addr, protocol.ChunkRegisterRequest{
		Endpoint: self,
		FileName: name,
		Chunk:    index,
	}, t.Timeout)
	return err
}

// RPCFetcher sends CHUNK_DOWNLOAD to the holder.
type RPCFetcher struct {
	Timeout time.Duration
}

func (f RPCFetcher) FetchChunk(ctx context.Context, from protocol.Endpoint, name string, index int) ([]byte, error) {
	resp, err := protocol.Invoke[protocol.ChunkDownloadResponse](ctx, from.String(), protocol.ChunkDownloadRequest{
		FileName: name,
		Chunk:    index,
	}, f.Timeout)
	return resp.Data, err
}
