package cairovnc

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
)

// RGBASurface is a ready-made Surface backed by an image.RGBA, guarded by
// its own mutex. It is not required by the protocol core — hosts may
// implement Surface/Locker however they like — but it is a convenient
// reference implementation for tests and the demo application, adapted
// from the teacher's VncCanvas (canvas.go): same image.RGBA + image/draw
// approach, repurposed from "client's view of the framebuffer" to "the
// thing the server reads from".
type RGBASurface struct {
	mu  sync.Mutex
	img *image.RGBA
}

// NewRGBASurface creates a width x height surface, initially black.
func NewRGBASurface(width, height int) *RGBASurface {
	return &RGBASurface{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Lock satisfies Locker; callers must hold it for the duration of any
// Surface method call. Draw, Fill and FillRect take it themselves, so
// callers must not hold it around those.
func (s *RGBASurface) Lock()   { s.mu.Lock() }
func (s *RGBASurface) Unlock() { s.mu.Unlock() }

// Format reports SurfaceFormatARGB32: image.RGBA stores alpha-premultiplied
// RGBA in memory order (R,G,B,A), which this type translates to the
// server's canonical (B,G,R,0) layout in Data.
func (s *RGBASurface) Format() SurfaceFormat { return SurfaceFormatARGB32 }

func (s *RGBASurface) Width() int  { return s.img.Bounds().Dx() }
func (s *RGBASurface) Height() int { return s.img.Bounds().Dy() }
func (s *RGBASurface) Stride() int { return s.img.Stride }

// Data returns the canonical little-endian (B,G,R,0/A) byte layout the
// server expects, in a newly allocated buffer on every call. Callers must hold
// the lock, as with every Surface method.
func (s *RGBASurface) Data() []byte {
	src := s.img.Pix
	out := make([]byte, len(src))
	for i := 0; i+3 < len(src); i += 4 {
		r, g, b, a := src[i], src[i+1], src[i+2], src[i+3]
		out[i+0] = b
		out[i+1] = g
		out[i+2] = r
		out[i+3] = a
	}
	return out
}

// Draw copies img onto the surface at the given point, under the surface's
// own lock (mirrors VncCanvas.Draw's draw.Draw call).
func (s *RGBASurface) Draw(src image.Image, at image.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := src.Bounds().Add(at.Sub(src.Bounds().Min))
	draw.Draw(s.img, r, src, src.Bounds().Min, draw.Src)
}

// Fill paints the whole surface a solid color.
func (s *RGBASurface) Fill(c color.Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	draw.Draw(s.img, s.img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// FillRect paints r a solid color, clipped to the surface bounds.
func (s *RGBASurface) FillRect(r image.Rectangle, c color.Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	draw.Draw(s.img, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
}
