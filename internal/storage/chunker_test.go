package storage

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ankesh2004/swarmfs/internal/integrity"
)

func TestHashChunksSmallFile(t *testing.T) {
	var v integrity.Verifier
	// small input: exactly one chunk
	data := []byte("hello, chunker!")
	hashes, n, err := HashChunks(bytes.NewReader(data), 4096, v)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, []string{v.Digest(data)}, hashes)
}

func TestHashChunksMultipleChunks(t *testing.T) {
	var v integrity.Verifier
	data := make([]byte, 9000)
	rand.Read(data)

	hashes, n, err := HashChunks(bytes.NewReader(data), 4096, v)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), n)
	require.Len(t, hashes, 3)
	assert.Equal(t, v.Digest(data[:4096]), hashes[0])
	assert.Equal(t, v.Digest(data[4096:8192]), hashes[1])
	assert.Equal(t, v.Digest(data[8192:]), hashes[2])
}

func TestHashChunksExactBoundary(t *testing.T) {
	var v integrity.Verifier
	// exactly 2x chunk size: no empty trailing chunk
	data := make([]byte, 1024)
	rand.Read(data)

	hashes, _, err := HashChunks(bytes.NewReader(data), 512, v)
	require.NoError(t, err)
	assert.Len(t, hashes, 2)
}

func TestHashChunksEmptyAndLargeChunk(t *testing.T) {
	var v integrity.Verifier
	hashes, n, err := HashChunks(bytes.NewReader(nil), 512, v)
	require.NoError(t, err)
	assert.Empty(t, hashes)
	assert.Zero(t, n)

	// larger than the pooled buffer size
	data := make([]byte, 600*1024)
	hashes, _, err = HashChunks(bytes.NewReader(data), 512*1024, v)
	require.NoError(t, err)
	assert.Len(t, hashes, 2)
}

func TestStoreManifest(t *testing.T) {
	s := newTestStore(t)
	v, err := integrity.New("sha256")
	require.NoError(t, err)

	data := make([]byte, 5000)
	rand.Read(data)
	require.NoError(t, os.WriteFile(filepath.Join(s.RootDir, "five.bin"), data, 0644))

	m, err := s.Manifest("five.bin", 1024, v)
	require.NoError(t, err)
	assert.Equal(t, "five.bin", m.Name)
	assert.Equal(t, int64(5000), m.Length)
	assert.Equal(t, "sha256", m.Algorithm)
	assert.Len(t, m.Hashes, 5)
	assert.NoError(t, m.Validate(1024))
}
