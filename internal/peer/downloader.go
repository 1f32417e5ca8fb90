package peer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Ankesh2004/swarmfs/internal/integrity"
	"github.com/Ankesh2004/swarmfs/internal/piece"
	"github.com/Ankesh2004/swarmfs/internal/protocol"
	"github.com/Ankesh2004/swarmfs/internal/storage"
)

// ErrDownloadExists is returned when the file is already being downloaded
// or is already held in full.
var ErrDownloadExists = errors.New("download already exists")

type DownloaderOptions struct {
	Self        protocol.Endpoint
	Tracker     TrackerClient
	Fetcher     ChunkFetcher
	Store       *storage.Store
	Catalog     *storage.Catalog
	ChunkSize   int64
	Concurrency int
	Picker      Picker
	Logger      *log.Entry
}

// Downloader pulls whole files from the swarm, chunk by chunk, verifying
// each chunk before it touches disk.
type Downloader struct {
	DownloaderOptions

	mu     sync.Mutex
	active map[string]*Download // nil value: reserved, still setting up
}

func NewDownloader(options DownloaderOptions) *Downloader {
	if options.ChunkSize <= 0 {
		options.ChunkSize = protocol.DefaultChunkSize
	}
	if options.Concurrency <= 0 {
		options.Concurrency = protocol.DefaultConcurrency
	}
	if options.Picker == nil {
		options.Picker = RandomPicker
	}
	if options.Logger == nil {
		options.Logger = log.WithField("component", "downloader")
	}
	return &Downloader{
		DownloaderOptions: options,
		active:            make(map[string]*Download),
	}
}

// Download starts fetching name into the store and returns immediately.
// Setup errors (unknown file, bad manifest, already downloading) are
// returned directly; anything after that is reported by the handle.
// Cancelling ctx aborts the download.
func (d *Downloader) Download(ctx context.Context, name string) (*Download, error) {
	d.mu.Lock()
	if _, ok := d.active[name]; ok {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is in flight", ErrDownloadExists, name)
	}
	d.active[name] = nil
	d.mu.Unlock()

	job, order, loc, err := d.prepare(ctx, name)
	if err != nil {
		d.release(name)
		return nil, err
	}

	d.mu.Lock()
	d.active[name] = job
	d.mu.Unlock()

	go d.run(ctx, job, order, loc)
	return job, nil
}

func (d *Downloader) prepare(ctx context.Context, name string) (*Download, []int, protocol.Locations, error) {
	var loc protocol.Locations

	files, err := d.Tracker.ListFiles(ctx, "")
	if err != nil {
		return nil, nil, loc, fmt.Errorf("list files: %w", err)
	}
	idx := slices.IndexFunc(files, func(f protocol.FileInfo) bool { return f.Name == name })
	if idx < 0 {
		return nil, nil, loc, fmt.Errorf("%w: tracker does not know %q", protocol.ErrNotFound, name)
	}

	loc, err = d.Tracker.FileLocations(ctx, name)
	if err != nil {
		return nil, nil, loc, fmt.Errorf("locate %s: %w", name, err)
	}
	manifest := loc.Manifest(name)
	if err := manifest.Validate(d.ChunkSize); err != nil {
		// most likely the tracker runs with a different chunk size
		return nil, nil, loc, err
	}
	if _, err := integrity.New(loc.Algorithm); err != nil {
		return nil, nil, loc, fmt.Errorf("%w: %w", protocol.ErrProtocol, err)
	}

	// Begin before touching the file: a complete local copy must not be truncated
	owned, err := d.Catalog.Begin(manifest)
	if err != nil {
		return nil, nil, loc, fmt.Errorf("%w: %w", ErrDownloadExists, err)
	}
	if err := d.Store.Preallocate(name, loc.Length); err != nil {
		return nil, nil, loc, err
	}

	order := piece.RarestFirst(loc.Availability, len(manifest.Hashes))
	if len(owned) > 0 {
		order = slices.DeleteFunc(order, func(i int) bool {
			_, found := slices.BinarySearch(owned, i)
			return found
		})
	}
	return newDownload(name, len(manifest.Hashes), len(owned)), order, loc, nil
}

func (d *Downloader) release(name string) {
	d.mu.Lock()
	delete(d.active, name)
	d.mu.Unlock()
}

func (d *Downloader) run(ctx context.Context, job *Download, order []int, snapshot protocol.Locations) {
	entry := d.Logger.WithField("file", job.Name)
	_, total := job.Progress()
	entry.WithFields(log.Fields{"chunks": total, "missing": len(order)}).Info("download started")

	verifier, _ := integrity.New(snapshot.Algorithm) // checked in prepare

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.Concurrency)
	for _, index := range order {
		if gctx.Err() != nil {
			break
		}
		index := index
		g.Go(func() error {
			return d.fetchChunk(gctx, job, index, snapshot, verifier)
		})
	}
	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	d.release(job.Name)
	if err != nil {
		entry.WithError(err).Error("download failed")
	} else {
		entry.Info("download complete")
	}
	job.finish(err)
}

// fetchChunk walks the chunk's holders until one returns bytes that verify.
func (d *Downloader) fetchChunk(ctx context.Context, job *Download, index int, snapshot protocol.Locations, verifier integrity.Verifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	offset, size, err := protocol.ChunkSpan(index, snapshot.Length, d.ChunkSize)
	if err != nil {
		return err
	}

	entry := d.Logger.WithFields(log.Fields{"file": job.Name, "chunk": index})
	candidates := newCandidateSet(d.holders(ctx, job.Name, index, snapshot), d.Self, d.Picker)

	var lastErr error
	for {
		from, ok := candidates.next()
		if !ok {
			break
		}
		data, err := d.Fetcher.FetchChunk(ctx, from, job.Name, index)
		if err == nil && int64(len(data)) != size {
			err = fmt.Errorf("%w: got %d bytes, want %d", protocol.ErrIntegrityMismatch, len(data), size)
		}
		if err == nil {
			err = verifier.Verify(data, snapshot.Hashes[index])
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			entry.WithError(err).WithField("peer", from.String()).Warn("chunk fetch failed, trying next holder")
			lastErr = err
			continue
		}

		candidates.succeed()
		return d.commit(ctx, job, index, offset, data)
	}

	if lastErr == nil {
		return fmt.Errorf("%w: nobody holds chunk %d of %s", protocol.ErrNoAvailablePeer, index, job.Name)
	}
	return fmt.Errorf("%w: chunk %d of %s failed on all %d holders, last error: %v",
		protocol.ErrNoAvailablePeer, index, job.Name, candidates.tried, lastErr)
}

// holders asks the tracker for the chunk's current holders, so peers that
// picked the chunk up since the download started are included. If the
// tracker is unreachable the snapshot taken at start is used.
func (d *Downloader) holders(ctx context.Context, name string, index int, snapshot protocol.Locations) []protocol.Endpoint {
	avail := snapshot.Availability
	fresh, err := d.Tracker.FileLocations(ctx, name)
	switch {
	case err != nil:
		d.Logger.WithError(err).WithField("file", name).Debug("location refresh failed, using snapshot")
	case fresh.Length != snapshot.Length:
		d.Logger.WithField("file", name).Warn("tracker record changed length mid-download, using snapshot")
	default:
		avail = fresh.Availability
	}
	return avail.Holders(index)
}

func (d *Downloader) commit(ctx context.Context, job *Download, index int, offset int64, data []byte) error {
	if err := d.Store.WriteAt(job.Name, offset, data); err != nil {
		return fmt.Errorf("store chunk %d of %s: %w", index, job.Name, err)
	}
	if err := d.Catalog.MarkOwned(job.Name, index); err != nil {
		return err
	}
	// the tracker only learns about us as a source; the download itself is fine
	if err := d.Tracker.RegisterChunk(ctx, d.Self, job.Name, index); err != nil {
		d.Logger.WithError(err).WithFields(log.Fields{"file": job.Name, "chunk": index}).Warn("chunk register failed")
	}
	job.chunkDone()
	return nil
}

// Progress returns the percent complete of an in-flight download.
func (d *Downloader) Progress(name string) (float64, bool) {
	d.mu.Lock()
	job := d.active[name]
	d.mu.Unlock()
	if job == nil {
		return 0, false
	}
	return job.Percent(), true
}

// Active returns the in-flight downloads sorted by name.
func (d *Downloader) Active() []*Download {
	d.mu.Lock()
	jobs := make([]*Download, 0, len(d.active))
	for _, job := range d.active {
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	d.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}
