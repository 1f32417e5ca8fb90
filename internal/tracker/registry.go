// Package tracker keeps the authoritative record of which peers hold which
// chunks of which files, and serves it over the swarm protocol.
package tracker

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/Ankesh2004/swarmfs/internal/integrity"
	"github.com/Ankesh2004/swarmfs/internal/protocol"
)

type fileRecord struct {
	length    int64
	algorithm string
	hashes    []string
	holders   map[protocol.Endpoint]*roaring.Bitmap
}

func (f *fileRecord) chunkCount() int {
	return len(f.hashes)
}

// RegisterResult reports manifests that disagreed with the record the
// tracker already held. Those records were not changed.
type RegisterResult struct {
	Conflicts []string
}

type Stats struct {
	Files    int
	Peers    int
	Holdings uint64 // (peer, file, chunk) triples
}

// Registry is the tracker's whole state. One lock guards everything, so
// every operation is linearizable. Records are never deleted.
type Registry struct {
	chunkSize int64

	mu    sync.RWMutex
	files map[string]*fileRecord
}

func NewRegistry(chunkSize int64) *Registry {
	if chunkSize <= 0 {
		chunkSize = protocol.DefaultChunkSize
	}
	return &Registry{
		chunkSize: chunkSize,
		files:     make(map[string]*fileRecord),
	}
}

func (r *Registry) ChunkSize() int64 {
	return r.chunkSize
}

// RegisterFiles records that peer holds every chunk of each manifest.
//
// A new name creates the record. A known name only replaces peer's own
// entry. If the manifest disagrees with the record, the record stays as it
// was and peer is credited only with the chunks whose hash matches (none if
// the length or algorithm differ); the name is listed in the result.
// A malformed manifest rejects the whole batch before anything changes.
func (r *Registry) RegisterFiles(peer protocol.Endpoint, manifests []protocol.FileManifest) (RegisterResult, error) {
	if peer.IsZero() {
		return RegisterResult{}, fmt.Errorf("%w: register without an endpoint", protocol.ErrProtocol)
	}
	for _, m := range manifests {
		if err := m.Validate(r.chunkSize); err != nil {
			return RegisterResult{}, err
		}
	}

	var res RegisterResult

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range manifests {
		algorithm := m.Algorithm
		if algorithm == "" {
			algorithm = integrity.DefaultAlgorithm
		}

		rec, ok := r.files[m.Name]
		if !ok {
			rec = &fileRecord{
				length:    m.Length,
				algorithm: algorithm,
				hashes:    slices.Clone(m.Hashes),
				holders:   make(map[protocol.Endpoint]*roaring.Bitmap),
			}
			r.files[m.Name] = rec
		}

		owned := roaring.New()
		switch {
		case rec.length != m.Length || rec.algorithm != algorithm:
			res.Conflicts = append(res.Conflicts, m.Name)
		case slices.Equal(rec.hashes, m.Hashes):
			if n := rec.chunkCount(); n > 0 {
				owned.AddRange(0, uint64(n))
			}
		default:
			res.Conflicts = append(res.Conflicts, m.Name)
			for i, h := range m.Hashes {
				if rec.hashes[i] == h {
					owned.Add(uint32(i))
				}
			}
		}
		rec.holders[peer] = owned
	}
	return res, nil
}

// ListFiles returns every known file sorted by name.
func (r *Registry) ListFiles() []protocol.FileInfo {
	r.mu.RLock()
	files := make([]protocol.FileInfo, 0, len(r.files))
	for name, rec := range r.files {
		files = append(files, protocol.FileInfo{Name: name, Length: rec.length})
	}
	r.mu.RUnlock()

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files
}

// FileLocations returns a deep copy of the record for name.
func (r *Registry) FileLocations(name string) (protocol.Locations, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.files[name]
	if !ok {
		return protocol.Locations{}, fmt.Errorf("%w: file %q", protocol.ErrNotFound, name)
	}
	avail := make(protocol.AvailabilityMap, len(rec.holders))
	for ep, set := range rec.holders {
		chunks := make([]int, 0, set.GetCardinality())
		it := set.Iterator()
		for it.HasNext() {
			chunks = append(chunks, int(it.Next()))
		}
		avail[ep] = chunks
	}
	return protocol.Locations{
		Availability: avail,
		Algorithm:    rec.algorithm,
		Hashes:       slices.Clone(rec.hashes),
		Length:       rec.length,
	}, nil
}

// RegisterChunk adds index to peer's set for name, creating the entry if
// needed. Registering the same chunk twice is a no-op.
func (r *Registry) RegisterChunk(peer protocol.Endpoint, name string, index int) error {
	if peer.IsZero() {
		return fmt.Errorf("%w: chunk register without an endpoint", protocol.ErrProtocol)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.files[name]
	if !ok {
		return fmt.Errorf("%w: file %q", protocol.ErrNotFound, name)
	}
	if index < 0 || index >= rec.chunkCount() {
		return fmt.Errorf("%w: chunk %d of %q (has %d)", protocol.ErrNotFound, index, name, rec.chunkCount())
	}
	set, ok := rec.holders[peer]
	if !ok {
		set = roaring.New()
		rec.holders[peer] = set
	}
	set.Add(uint32(index))
	return nil
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make(map[protocol.Endpoint]struct{})
	var st Stats
	st.Files = len(r.files)
	for _, rec := range r.files {
		for ep, set := range rec.holders {
			peers[ep] = struct{}{}
			st.Holdings += set.GetCardinality()
		}
	}
	st.Peers = len(peers)
	return st
}
