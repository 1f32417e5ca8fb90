package protocol

import (
	"fmt"
	"sort"
)

// FileInfo is the FILE_LIST view of a file.
type FileInfo struct {
	Name   string
	Length int64
}

// FileManifest is a file's length plus its ordered per-chunk digests.
// Algorithm names the digest the hashes were computed with.
type FileManifest struct {
	Name      string
	Length    int64
	Algorithm string
	Hashes    []string
}

// ChunkCount returns ceil(length / chunkSize).
func ChunkCount(length, chunkSize int64) int {
	if length <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((length + chunkSize - 1) / chunkSize)
}

// ChunkSpan returns the byte offset and size of chunk index. The last chunk
// may be shorter than chunkSize.
func ChunkSpan(index int, length, chunkSize int64) (offset, size int64, err error) {
	if index < 0 || index >= ChunkCount(length, chunkSize) {
		return 0, 0, fmt.Errorf("%w: chunk %d out of range for length %d", ErrNotFound, index, length)
	}
	offset = int64(index) * chunkSize
	size = min(chunkSize, length-offset)
	return offset, size, nil
}

// Validate checks the hash list against the chunk count for chunkSize.
func (m FileManifest) Validate(chunkSize int64) error {
	if m.Name == "" {
		return fmt.Errorf("%w: manifest without a name", ErrProtocol)
	}
	if m.Length < 0 {
		return fmt.Errorf("%w: %s has negative length %d", ErrProtocol, m.Name, m.Length)
	}
	if want := ChunkCount(m.Length, chunkSize); len(m.Hashes) != want {
		return fmt.Errorf("%w: %s has %d hashes, want %d", ErrProtocol, m.Name, len(m.Hashes), want)
	}
	return nil
}

// AvailabilityMap maps each holder to the sorted chunk indices it has.
type AvailabilityMap map[Endpoint][]int

// Holders returns the endpoints holding index, ordered by address.
func (a AvailabilityMap) Holders(index int) []Endpoint {
	var holders []Endpoint
	for ep, chunks := range a {
		i := sort.SearchInts(chunks, index)
		if i < len(chunks) && chunks[i] == index {
			holders = append(holders, ep)
		}
	}
	sort.Slice(holders, func(i, j int) bool {
		return holders[i].String() < holders[j].String()
	})
	return holders
}

// Locations is everything a downloader needs to fetch one file.
type Locations struct {
	Availability AvailabilityMap
	Algorithm    string
	Hashes       []string
	Length       int64
}

// Manifest rebuilds the file manifest the locations describe.
func (l Locations) Manifest(name string) FileManifest {
	return FileManifest{Name: name, Length: l.Length, Algorithm: l.Algorithm, Hashes: l.Hashes}
}
