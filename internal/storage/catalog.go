package storage

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/Ankesh2004/swarmfs/internal/protocol"
)

// ErrExists is returned by Begin for a file the catalog already holds in full
// or holds under a different manifest.
var ErrExists = errors.New("already in catalog")

// Entry is a snapshot of one catalog record.
type Entry struct {
	Manifest protocol.FileManifest
	Owned    []int
}

func (e Entry) Complete() bool {
	return len(e.Owned) == len(e.Manifest.Hashes)
}

type record struct {
	manifest protocol.FileManifest
	owned    *roaring.Bitmap
}

// Catalog is this peer's local bookkeeping: which files it knows about and
// which chunks of each it actually has on disk. Other nodes don't see this;
// the tracker only hears about ownership through REGISTER and CHUNK_REGISTER.
type Catalog struct {
	mu      sync.RWMutex
	records map[string]*record
}

func NewCatalog() *Catalog {
	return &Catalog{records: make(map[string]*record)}
}

// AddComplete records m as fully owned, replacing any previous record.
func (c *Catalog) AddComplete(m protocol.FileManifest) {
	owned := roaring.New()
	if n := len(m.Hashes); n > 0 {
		owned.AddRange(0, uint64(n))
	}
	c.mu.Lock()
	c.records[m.Name] = &record{manifest: cloneManifest(m), owned: owned}
	c.mu.Unlock()
}

// Begin opens a record for a download of m and returns the chunks already
// owned. An earlier partial record with the same manifest is kept, so an
// interrupted download only refetches what is missing.
func (c *Catalog) Begin(m protocol.FileManifest) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.records[m.Name]; ok {
		if !sameManifest(r.manifest, m) {
			return nil, fmt.Errorf("%w: %s with a different manifest", ErrExists, m.Name)
		}
		if int(r.owned.GetCardinality()) == len(m.Hashes) {
			return nil, fmt.Errorf("%w: %s", ErrExists, m.Name)
		}
		return toInts(r.owned), nil
	}
	c.records[m.Name] = &record{manifest: cloneManifest(m), owned: roaring.New()}
	return nil, nil
}

// MarkOwned records that chunk index of name is on disk and verified.
func (c *Catalog) MarkOwned(name string, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.records[name]
	if !ok {
		return fmt.Errorf("%w: %s", protocol.ErrNotFound, name)
	}
	if index < 0 || index >= len(r.manifest.Hashes) {
		return fmt.Errorf("%w: chunk %d of %s", protocol.ErrNotFound, index, name)
	}
	r.owned.Add(uint32(index))
	return nil
}

// Owns reports whether chunk index of name can be served.
func (c *Catalog) Owns(name string, index int) bool {
	if index < 0 {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[name]
	return ok && r.owned.Contains(uint32(index))
}

// Servable returns the file length if chunk index of name is owned, and
// protocol.ErrNotFound otherwise.
func (c *Catalog) Servable(name string, index int) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[name]
	if !ok {
		return 0, fmt.Errorf("%w: file %q", protocol.ErrNotFound, name)
	}
	if index < 0 || !r.owned.Contains(uint32(index)) {
		return 0, fmt.Errorf("%w: chunk %d of %q not held", protocol.ErrNotFound, index, name)
	}
	return r.manifest.Length, nil
}

func (c *Catalog) Lookup(name string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[name]
	if !ok {
		return Entry{}, false
	}
	return Entry{Manifest: cloneManifest(r.manifest), Owned: toInts(r.owned)}, true
}

// List returns every record sorted by file name.
func (c *Catalog) List() []Entry {
	c.mu.RLock()
	entries := make([]Entry, 0, len(c.records))
	for _, r := range c.records {
		entries = append(entries, Entry{Manifest: cloneManifest(r.manifest), Owned: toInts(r.owned)})
	}
	c.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Manifest.Name < entries[j].Manifest.Name })
	return entries
}

func toInts(b *roaring.Bitmap) []int {
	out := make([]int, 0, b.GetCardinality())
	it := b.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}

func cloneManifest(m protocol.FileManifest) protocol.FileManifest {
	m.Hashes = slices.Clone(m.Hashes)
	return m
}

func sameManifest(a, b protocol.FileManifest) bool {
	return a.Length == b.Length && a.Algorithm == b.Algorithm && slices.Equal(a.Hashes, b.Hashes)
}
