package peer

import (
	"context"
	"math"
	"sync/atomic"
)

// Download is the handle for one in-flight file download.
type Download struct {
	Name string

	total      int
	downloaded atomic.Int64

	done chan struct{}
	err  error // written once, before done is closed
}

func newDownload(name string, total, alreadyOwned int) *Download {
	d := &Download{Name: name, total: total, done: make(chan struct{})}
	d.downloaded.Store(int64(alreadyOwned))
	return d
}

// Progress returns verified-and-written chunks out of the total. It never
// decreases.
func (d *Download) Progress() (downloaded, total int) {
	return int(d.downloaded.Load()), d.total
}

// Percent is downloaded/total*100 rounded to two decimals. An empty file is
// always at 100.
func (d *Download) Percent() float64 {
	if d.total == 0 {
		return 100
	}
	return percent(int(d.downloaded.Load()), d.total)
}

func percent(downloaded, total int) float64 {
	return math.Round(float64(downloaded)/float64(total)*100*100) / 100
}

// Done is closed exactly once, when the download finishes either way.
func (d *Download) Done() <-chan struct{} {
	return d.done
}

// Err is nil while the download runs and after it succeeds.
func (d *Download) Err() error {
	select {
	case <-d.done:
		return d.err
	default:
		return nil
	}
}

// Wait blocks until the download finishes or ctx ends.
func (d *Download) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Download) chunkDone() {
	d.downloaded.Add(1)
}

func (d *Download) finish(err error) {
	d.err = err
	close(d.done)
}
