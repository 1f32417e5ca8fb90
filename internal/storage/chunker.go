package storage

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Ankesh2004/swarmfs/internal/integrity"
	"github.com/Ankesh2004/swarmfs/internal/protocol"
)

// bufPool reuses chunk-sized buffers so mounting a directory of many files
// doesn't allocate a fresh chunk per read.
var bufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, protocol.DefaultChunkSize)
		return &buf
	},
}

// HashChunks reads src in chunkSize pieces and returns the hex digest of
// each piece in order, plus the total number of bytes read. Empty input
// yields no digests.
func HashChunks(src io.Reader, chunkSize int64, v integrity.Verifier) ([]string, int64, error) {
	if chunkSize <= 0 {
		chunkSize = protocol.DefaultChunkSize
	}

	bufPtr := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufPtr)
	if int64(cap(*bufPtr)) < chunkSize {
		// pool only holds default-sized buffers; grow this one for good
		*bufPtr = make([]byte, chunkSize)
	}
	buf := (*bufPtr)[:chunkSize]

	var (
		hashes []string
		total  int64
	)
	for index := 0; ; index++ {
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			hashes = append(hashes, v.Digest(buf[:n]))
			total += int64(n)
		}
		// ErrUnexpectedEOF means a short final chunk
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("chunk %d read error: %w", index, err)
		}
	}
	return hashes, total, nil
}

// Manifest hashes the stored file name and returns its manifest.
func (s *Store) Manifest(name string, chunkSize int64, v integrity.Verifier) (protocol.FileManifest, error) {
	f, err := s.Open(name)
	if err != nil {
		return protocol.FileManifest{}, err
	}
	defer f.Close()

	hashes, length, err := HashChunks(f, chunkSize, v)
	if err != nil {
		return protocol.FileManifest{}, fmt.Errorf("hash %s: %w", name, err)
	}
	return protocol.FileManifest{
		Name:      name,
		Length:    length,
		Algorithm: v.Algorithm(),
		Hashes:    hashes,
	}, nil
}
