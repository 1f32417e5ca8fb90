package storage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ankesh2004/swarmfs/internal/protocol"
)

func manifest(name string, chunks int) protocol.FileManifest {
	m := protocol.FileManifest{Name: name, Length: int64(chunks) * 10, Algorithm: "sha1"}
	for i := 0; i < chunks; i++ {
		m.Hashes = append(m.Hashes, string(rune('a'+i)))
	}
	return m
}

func TestCatalogComplete(t *testing.T) {
	c := NewCatalog()
	c.AddComplete(manifest("f", 3))

	e, ok := c.Lookup("f")
	require.True(t, ok)
	assert.Equal(t, []int{0, 1, 2}, e.Owned)
	assert.True(t, e.Complete())
	assert.True(t, c.Owns("f", 2))
	assert.False(t, c.Owns("f", 3))
	assert.False(t, c.Owns("f", -1))

	_, err := c.Begin(manifest("f", 3))
	assert.ErrorIs(t, err, ErrExists)
}

func TestCatalogBeginAndMark(t *testing.T) {
	c := NewCatalog()
	owned, err := c.Begin(manifest("f", 4))
	require.NoError(t, err)
	assert.Empty(t, owned)
	assert.False(t, c.Owns("f", 0))

	var wg sync.WaitGroup
	for i := 0; i < 4; i += 2 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, c.MarkOwned("f", i))
		}(i)
	}
	wg.Wait()

	assert.ErrorIs(t, c.MarkOwned("f", 4), protocol.ErrNotFound)
	assert.ErrorIs(t, c.MarkOwned("other", 0), protocol.ErrNotFound)

	// a partial record is resumed, not rejected
	owned, err = c.Begin(manifest("f", 4))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, owned)

	_, err = c.Begin(manifest("f", 5))
	assert.ErrorIs(t, err, ErrExists)
}

func TestCatalogListSorted(t *testing.T) {
	c := NewCatalog()
	c.AddComplete(manifest("b", 1))
	c.AddComplete(manifest("a", 0))

	entries := c.List()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Manifest.Name)
	assert.True(t, entries[0].Complete())
	assert.Equal(t, "b", entries[1].Manifest.Name)
}

func TestCatalogServable(t *testing.T) {
	c := NewCatalog()
	_, err := c.Servable("f", 0)
	assert.ErrorIs(t, err, protocol.ErrNotFound)

	_, err = c.Begin(manifest("f", 2))
	require.NoError(t, err)
	_, err = c.Servable("f", 1)
	assert.ErrorIs(t, err, protocol.ErrNotFound)

	require.NoError(t, c.MarkOwned("f", 1))
	length, err := c.Servable("f", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), length)
}
