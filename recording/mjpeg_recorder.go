package recording

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"

	"github.com/icza/mjpeg"
)

// FrameSource supplies the pixel data an MJPEGRecorder captures. It is
// deliberately narrower than cairovnc.Surface (rows of canonical
// little-endian B,G,R,0 bytes) so this package never needs to import the
// root package, avoiding an import cycle with Server.
type FrameSource interface {
	// CaptureFrame returns the current frame as row-major B,G,R,0 bytes,
	// plus its width and height in pixels.
	CaptureFrame() (rows []byte, width, height int, err error)
}

// MJPEGRecorder periodically captures a FrameSource and appends it as a
// JPEG frame to an MJPEG-codec AVI file via github.com/icza/mjpeg. It is
// off by default: callers must explicitly call Start.
type MJPEGRecorder struct {
	path   string
	fps    int
	source FrameSource

	mu      sync.Mutex
	writer  mjpeg.AviWriter
	stopCh  chan struct{}
	stopped sync.WaitGroup
}

// NewMJPEGRecorder builds a recorder that will write frames captured from
// source into path at the given frame rate once Start is called.
func NewMJPEGRecorder(path string, fps int, source FrameSource) *MJPEGRecorder {
	if fps <= 0 {
		fps = 5
	}
	return &MJPEGRecorder{path: path, fps: fps, source: source}
}

// Start opens the output file and begins capturing frames in a background
// goroutine. The first captured frame fixes the video's dimensions; later
// frames of a different size are skipped rather than corrupting the
// container.
func (r *MJPEGRecorder) Start() error {
	rows, width, height, err := r.source.CaptureFrame()
	if err != nil {
		return fmt.Errorf("recording: initial mjpeg capture: %w", err)
	}
	writer, err := mjpeg.New(r.path, int32(width), int32(height), int32(r.fps))
	if err != nil {
		return fmt.Errorf("recording: open mjpeg writer: %w", err)
	}
	r.writer = writer

	if err := r.writeFrame(rows, width, height); err != nil {
		return err
	}

	r.stopCh = make(chan struct{})
	r.stopped.Add(1)
	go r.loop(width, height)
	return nil
}

func (r *MJPEGRecorder) loop(width, height int) {
	defer r.stopped.Done()
	ticker := time.NewTicker(time.Second / time.Duration(r.fps))
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			rows, w, h, err := r.source.CaptureFrame()
			if err != nil || w != width || h != height {
				continue
			}
			r.writeFrame(rows, w, h)
		}
	}
}

func (r *MJPEGRecorder) writeFrame(rows []byte, width, height int) error {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	stride := width * 4
	for y := 0; y < height; y++ {
		rowOff := y * stride
		for x := 0; x < width; x++ {
			p := rowOff + x*4
			b, g, rr := rows[p], rows[p+1], rows[p+2]
			img.Set(x, y, color.RGBA{R: rr, G: g, B: b, A: 0xff})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return fmt.Errorf("recording: jpeg encode: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return nil
	}
	return r.writer.AddFrame(buf.Bytes())
}

// Stop halts capture and closes the output file.
func (r *MJPEGRecorder) Stop() error {
	if r.stopCh != nil {
		close(r.stopCh)
		r.stopped.Wait()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return nil
	}
	err := r.writer.Close()
	r.writer = nil
	return err
}
