package peer

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ankesh2004/swarmfs/internal/integrity"
	"github.com/Ankesh2004/swarmfs/internal/protocol"
	"github.com/Ankesh2004/swarmfs/internal/storage"
	"github.com/Ankesh2004/swarmfs/internal/tracker"
)

const testChunkSize = 4096

func quietLogger() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	return log.NewEntry(l)
}

// fakeTracker runs the real registry in-process.
type fakeTracker struct {
	reg *tracker.Registry

	mu               sync.Mutex
	locationsDown    bool // fail every FileLocations after the first
	locationCalls    int
	registerChunkErr error
}

func (f *fakeTracker) Register(_ context.Context, self protocol.Endpoint, manifests []protocol.FileManifest) ([]string, error) {
	res, err := f.reg.RegisterFiles(self, manifests)
	return res.Conflicts, err
}

func (f *fakeTracker) ListFiles(context.Context, string) ([]protocol.FileInfo, error) {
	return f.reg.ListFiles(), nil
}

func (f *fakeTracker) FileLocations(_ context.Context, name string) (protocol.Locations, error) {
	f.mu.Lock()
	f.locationCalls++
	down := f.locationsDown && f.locationCalls > 1
	f.mu.Unlock()
	if down {
		return protocol.Locations{}, protocol.ErrNetwork
	}
	return f.reg.FileLocations(name)
}

func (f *fakeTracker) RegisterChunk(_ context.Context, self protocol.Endpoint, name string, index int) error {
	if f.registerChunkErr != nil {
		return f.registerChunkErr
	}
	return f.reg.RegisterChunk(self, name, index)
}

type behavior int

const (
	serveOK behavior = iota
	serveCorrupt
	serveDown
)

// fakeFetcher serves chunks of in-memory files, misbehaving per holder.
type fakeFetcher struct {
	files     map[string][]byte
	behaviors map[protocol.Endpoint]behavior
	onFetch   func()

	mu    sync.Mutex
	calls map[protocol.Endpoint]int
}

func (f *fakeFetcher) FetchChunk(ctx context.Context, from protocol.Endpoint, name string, index int) ([]byte, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[protocol.Endpoint]int)
	}
	f.calls[from]++
	f.mu.Unlock()
	if f.onFetch != nil {
		f.onFetch()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch f.behaviors[from] {
	case serveDown:
		return nil, protocol.ErrNetwork
	}
	data := f.files[name]
	off, size, err := protocol.ChunkSpan(index, int64(len(data)), testChunkSize)
	if err != nil {
		return nil, err
	}
	chunk := bytes.Clone(data[off : off+size])
	if f.behaviors[from] == serveCorrupt {
		chunk[0] ^= 0xff
	}
	return chunk, nil
}

func (f *fakeFetcher) callsTo(e protocol.Endpoint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[e]
}

type fixture struct {
	self    protocol.Endpoint
	tracker *fakeTracker
	fetcher *fakeFetcher
	store   *storage.Store
	catalog *storage.Catalog
	dl      *Downloader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		self:    ep(9999),
		tracker: &fakeTracker{reg: tracker.NewRegistry(testChunkSize)},
		fetcher: &fakeFetcher{files: map[string][]byte{}, behaviors: map[protocol.Endpoint]behavior{}},
		store:   store,
		catalog: storage.NewCatalog(),
	}
	f.dl = NewDownloader(DownloaderOptions{
		Self:        f.self,
		Tracker:     f.tracker,
		Fetcher:     f.fetcher,
		Store:       f.store,
		Catalog:     f.catalog,
		ChunkSize:   testChunkSize,
		Concurrency: 4,
		Picker:      FirstPicker,
		Logger:      quietLogger(),
	})
	return f
}

// seed shares data under name from each holder.
func (f *fixture) seed(t *testing.T, name string, data []byte, holders ...protocol.Endpoint) protocol.FileManifest {
	t.Helper()
	var v integrity.Verifier
	hashes, _, err := storage.HashChunks(bytes.NewReader(data), testChunkSize, v)
	require.NoError(t, err)
	m := protocol.FileManifest{Name: name, Length: int64(len(data)), Algorithm: v.Algorithm(), Hashes: hashes}
	for _, h := range holders {
		_, err := f.tracker.Register(context.Background(), h, []protocol.FileManifest{m})
		require.NoError(t, err)
	}
	f.fetcher.files[name] = data
	return m
}

func (f *fixture) contents(t *testing.T, name string, size int64) []byte {
	t.Helper()
	got, err := f.store.ReadAt(name, 0, size)
	require.NoError(t, err)
	return got
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}

func wait(t *testing.T, d *Download) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.Wait(ctx)
}

func TestDownloadNineThousandBytes(t *testing.T) {
	f := newFixture(t)
	data := randomBytes(9000)
	f.seed(t, "a.bin", data, ep(1))

	d, err := f.dl.Download(context.Background(), "a.bin")
	require.NoError(t, err)
	require.NoError(t, wait(t, d))

	assert.Equal(t, data, f.contents(t, "a.bin", 9000))
	assert.Equal(t, 100.0, d.Percent())
	downloaded, total := d.Progress()
	assert.Equal(t, 3, downloaded)
	assert.Equal(t, 3, total)

	loc, err := f.tracker.reg.FileLocations("a.bin")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, loc.Availability[f.self])

	e, ok := f.catalog.Lookup("a.bin")
	require.True(t, ok)
	assert.True(t, e.Complete())

	_, inFlight := f.dl.Progress("a.bin")
	assert.False(t, inFlight, "finished downloads leave the in-flight table")
}

func TestDownloadSkipsCorruptHolder(t *testing.T) {
	f := newFixture(t)
	data := randomBytes(9000)
	// ep(1) sorts first, so FirstPicker always tries the liar first
	f.seed(t, "a.bin", data, ep(1), ep(2))
	f.fetcher.behaviors[ep(1)] = serveCorrupt

	d, err := f.dl.Download(context.Background(), "a.bin")
	require.NoError(t, err)
	require.NoError(t, wait(t, d))

	assert.Equal(t, data, f.contents(t, "a.bin", 9000))
	assert.Equal(t, 3, f.fetcher.callsTo(ep(1)))
	assert.Equal(t, 3, f.fetcher.callsTo(ep(2)))
}

func TestDownloadSkipsUnreachableHolder(t *testing.T) {
	f := newFixture(t)
	data := randomBytes(5000)
	f.seed(t, "a.bin", data, ep(1), ep(2))
	f.fetcher.behaviors[ep(1)] = serveDown

	d, err := f.dl.Download(context.Background(), "a.bin")
	require.NoError(t, err)
	require.NoError(t, wait(t, d))
	assert.Equal(t, data, f.contents(t, "a.bin", 5000))
}

func TestDownloadAllHoldersCorrupt(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a.bin", randomBytes(9000), ep(1), ep(2))
	f.fetcher.behaviors[ep(1)] = serveCorrupt
	f.fetcher.behaviors[ep(2)] = serveCorrupt

	d, err := f.dl.Download(context.Background(), "a.bin")
	require.NoError(t, err)
	err = wait(t, d)
	assert.ErrorIs(t, err, protocol.ErrNoAvailablePeer)
	assert.Equal(t, err, d.Err())
	assert.Less(t, d.Percent(), 100.0)

	_, inFlight := f.dl.Progress("a.bin")
	assert.False(t, inFlight)
}

func TestDownloadChunkWithNoHolder(t *testing.T) {
	f := newFixture(t)
	m := f.seed(t, "a.bin", randomBytes(9000), ep(3))

	// a conflicting re-register leaves ep(3) credited with chunk 0 only
	bad := m
	bad.Hashes = []string{m.Hashes[0], "x", "y"}
	res, err := f.tracker.reg.RegisterFiles(ep(3), []protocol.FileManifest{bad})
	require.NoError(t, err)
	require.Equal(t, []string{"a.bin"}, res.Conflicts)

	d, err := f.dl.Download(context.Background(), "a.bin")
	require.NoError(t, err)
	assert.ErrorIs(t, wait(t, d), protocol.ErrNoAvailablePeer)
}

func TestDownloadUsesSnapshotWhenTrackerDrops(t *testing.T) {
	f := newFixture(t)
	data := randomBytes(9000)
	f.seed(t, "a.bin", data, ep(1))
	f.tracker.locationsDown = true
	f.tracker.registerChunkErr = protocol.ErrNetwork

	d, err := f.dl.Download(context.Background(), "a.bin")
	require.NoError(t, err)
	require.NoError(t, wait(t, d))
	assert.Equal(t, data, f.contents(t, "a.bin", 9000))
}

func TestDownloadProgressIsMonotonic(t *testing.T) {
	f := newFixture(t)
	data := randomBytes(40 * testChunkSize)
	f.seed(t, "big.bin", data, ep(1), ep(2))

	var (
		mu      sync.Mutex
		samples []float64
	)
	f.fetcher.onFetch = func() {
		mu.Lock()
		defer mu.Unlock()
		if p, ok := f.dl.Progress("big.bin"); ok {
			samples = append(samples, p)
		}
	}

	d, err := f.dl.Download(context.Background(), "big.bin")
	require.NoError(t, err)
	require.NoError(t, wait(t, d))
	assert.Equal(t, 100.0, d.Percent())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, samples)
	for i := 1; i < len(samples); i++ {
		assert.GreaterOrEqual(t, samples[i], samples[i-1])
	}
	assert.Less(t, samples[len(samples)-1], 100.0)
}

func TestDownloadEmptyFile(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "empty", nil, ep(1))

	d, err := f.dl.Download(context.Background(), "empty")
	require.NoError(t, err)
	require.NoError(t, wait(t, d))
	assert.Equal(t, 100.0, d.Percent())
	assert.True(t, f.store.Has("empty"))
}

func TestDownloadUnknownFile(t *testing.T) {
	f := newFixture(t)
	_, err := f.dl.Download(context.Background(), "ghost")
	assert.ErrorIs(t, err, protocol.ErrNotFound)

	// a failed setup does not block a later attempt
	f.seed(t, "ghost", randomBytes(10), ep(1))
	d, err := f.dl.Download(context.Background(), "ghost")
	require.NoError(t, err)
	require.NoError(t, wait(t, d))
}

func TestDownloadTwice(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a.bin", randomBytes(9000), ep(1))

	release := make(chan struct{})
	f.fetcher.onFetch = func() { <-release }

	d, err := f.dl.Download(context.Background(), "a.bin")
	require.NoError(t, err)
	_, err = f.dl.Download(context.Background(), "a.bin")
	assert.ErrorIs(t, err, ErrDownloadExists)

	p, ok := f.dl.Progress("a.bin")
	assert.True(t, ok)
	assert.Equal(t, 0.0, p)
	assert.Len(t, f.dl.Active(), 1)

	close(release)
	require.NoError(t, wait(t, d))

	// already held in full
	_, err = f.dl.Download(context.Background(), "a.bin")
	assert.ErrorIs(t, err, ErrDownloadExists)
}

func TestDownloadCancel(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a.bin", randomBytes(9000), ep(1))

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var once sync.Once
	f.fetcher.onFetch = func() {
		once.Do(func() { close(started) })
		<-ctx.Done()
	}

	d, err := f.dl.Download(ctx, "a.bin")
	require.NoError(t, err)
	<-started
	cancel()

	err = wait(t, d)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestDownloadResumesPartialCatalogEntry(t *testing.T) {
	f := newFixture(t)
	data := randomBytes(9000)
	m := f.seed(t, "a.bin", data, ep(1))

	// chunk 1 is already on disk from an earlier attempt
	_, err := f.catalog.Begin(m)
	require.NoError(t, err)
	require.NoError(t, f.store.Preallocate("a.bin", 9000))
	require.NoError(t, f.store.WriteAt("a.bin", testChunkSize, data[testChunkSize:2*testChunkSize]))
	require.NoError(t, f.catalog.MarkOwned("a.bin", 1))

	d, err := f.dl.Download(context.Background(), "a.bin")
	require.NoError(t, err)
	require.NoError(t, wait(t, d))
	assert.Equal(t, data, f.contents(t, "a.bin", 9000))
	assert.Equal(t, 2, f.fetcher.callsTo(ep(1)))
}
