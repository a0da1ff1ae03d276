package cairovnc

import (
	"bytes"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Snapshot is an immutable, row-addressed capture of the surface at a point
// in time. Rows are the server's canonical little-endian (B, G, R, 0) bytes.
// Consecutive rows that compare equal share the same backing slice so a
// client's incremental diff against an unchanged region is a single pointer
// comparison (spec.md §3).
type Snapshot struct {
	Width, Height int
	Rows          [][]byte
}

// SnapshotCache is a rate-limited, locked capture of a Surface. Every
// connection goroutine shares one cache per server; Data reuses the last
// capture when called again within the cache's min-period, so many clients
// polling at display refresh rate cost one real surface read (spec.md §4.3).
type SnapshotCache struct {
	surface Surface
	lock    Locker

	gate rate.Sometimes

	mu   sync.RWMutex
	snap Snapshot
}

// NewSnapshotCache builds a cache that will not re-read the surface more
// often than maxFramerate times per second.
func NewSnapshotCache(surface Surface, lock Locker, maxFramerate float64) *SnapshotCache {
	if maxFramerate <= 0 {
		maxFramerate = 1
	}
	c := &SnapshotCache{
		surface: surface,
		lock:    lock,
		gate:    rate.Sometimes{Interval: time.Duration(float64(time.Second) / maxFramerate)},
	}
	c.capture()
	return c
}

// Size reads width/height through the host lock without rate limiting
// (spec.md §4.3 — get_size is not subject to the capture throttle).
func (c *SnapshotCache) Size() (width, height int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.surface.Width(), c.surface.Height()
}

// Data returns the cached snapshot, refreshing it first if the min-period
// has elapsed since the last capture.
func (c *SnapshotCache) Data() (Snapshot, error) {
	var captureErr error
	c.gate.Do(func() {
		captureErr = c.capture()
	})
	if captureErr != nil {
		return Snapshot{}, captureErr
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap, nil
}

func (c *SnapshotCache) capture() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	format := c.surface.Format()
	if format != SurfaceFormatRGB24 && format != SurfaceFormatARGB32 {
		return newProtoErr(ErrBadSurfaceFormat, "unsupported surface format %v", format)
	}

	width := c.surface.Width()
	height := c.surface.Height()
	stride := c.surface.Stride()
	data := c.surface.Data()

	rows := make([][]byte, height)
	var lastSrc, lastRow []byte
	for y := 0; y < height; y++ {
		offset := y * stride
		src := data[offset : offset+stride]
		if lastSrc != nil && bytes.Equal(src, lastSrc) {
			rows[y] = lastRow
			continue
		}
		row := make([]byte, len(src))
		copy(row, src)
		if format == SurfaceFormatRGB24 {
			// The alpha byte is not meaningful for RGB24; force it to zero so
			// rows from an RGB24 surface always compare byte-for-byte equal
			// when the visible pixels are equal.
			for i := 3; i < len(row); i += 4 {
				row[i] = 0
			}
		}
		rows[y] = row
		lastSrc = src
		lastRow = row
	}

	c.mu.Lock()
	c.snap = Snapshot{Width: width, Height: height, Rows: rows}
	c.mu.Unlock()
	return nil
}
