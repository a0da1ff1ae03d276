package cairovnc

import (
	"encoding/binary"
)

// PixelFormat is the 16-byte wire descriptor from RFC 6143 §7.4, decoded
// into Go fields. All multi-byte wire values are big-endian regardless of
// the BigEndian flag the format itself describes (that flag only governs
// how pixel *data* is packed, not the descriptor itself).
type PixelFormat struct {
	BPP                             uint8
	Depth                           uint8
	BigEndian                       uint8
	TrueColor                       uint8
	RedMax, GreenMax, BlueMax       uint16
	RedShift, GreenShift, BlueShift uint8
	_                               [3]byte
}

// DefaultPixelFormat is the server's canonical internal row layout: 32bpp,
// little-endian 0x00RRGGBB words, i.e. bytes (B, G, R, 0) per pixel. This is
// the format ServerInit advertises before any SetPixelFormat.
var DefaultPixelFormat = PixelFormat{
	BPP: 32, Depth: 24, BigEndian: 0, TrueColor: 1,
	RedMax: 255, GreenMax: 255, BlueMax: 255,
	RedShift: 16, GreenShift: 8, BlueShift: 0,
}

// Marshal encodes the pixel format into its 16-byte wire representation.
func (pf PixelFormat) Marshal() []byte {
	buf := make([]byte, PixelFormatLen)
	buf[0] = pf.BPP
	buf[1] = pf.Depth
	buf[2] = pf.BigEndian
	buf[3] = pf.TrueColor
	binary.BigEndian.PutUint16(buf[4:6], pf.RedMax)
	binary.BigEndian.PutUint16(buf[6:8], pf.GreenMax)
	binary.BigEndian.PutUint16(buf[8:10], pf.BlueMax)
	buf[10] = pf.RedShift
	buf[11] = pf.GreenShift
	buf[12] = pf.BlueShift
	return buf
}

// UnmarshalPixelFormat decodes a 16-byte wire pixel format descriptor.
func UnmarshalPixelFormat(buf []byte) (PixelFormat, error) {
	if len(buf) != PixelFormatLen {
		return PixelFormat{}, newProtoErr(ErrBadPixelFormat, "pixel format must be %d bytes, got %d", PixelFormatLen, len(buf))
	}
	pf := PixelFormat{
		BPP:        buf[0],
		Depth:      buf[1],
		BigEndian:  buf[2],
		TrueColor:  buf[3],
		RedMax:     binary.BigEndian.Uint16(buf[4:6]),
		GreenMax:   binary.BigEndian.Uint16(buf[6:8]),
		BlueMax:    binary.BigEndian.Uint16(buf[8:10]),
		RedShift:   buf[10],
		GreenShift: buf[11],
		BlueShift:  buf[12],
	}
	return pf, nil
}

// RowConverter turns one row of the server's canonical (B, G, R, 0) bytes
// into the bytes a specific client's pixel format expects. It is built once
// per client by Converter and is safe to reuse across rows because the only
// mutable state it holds (a row-width memo and a reused output buffer) is
// touched exclusively by the connection goroutine that owns it. The slice
// returned by Convert may be overwritten by the next call.
type RowConverter interface {
	Convert(row []byte) []byte
}

type identityConverter struct{}

func (identityConverter) Convert(row []byte) []byte { return row }

// genericConverter recomputes every pixel from its masked R/G/B components
// and repacks it at the client's bpp/endianness. This mirrors
// cairovnc/pixeldata.py's GenericConverter, including its quirk of masking
// (not scaling) components by RedMax/GreenMax/BlueMax.
type genericConverter struct {
	pf        PixelFormat
	bigEndian bool

	width int    // pixel count memoized from the last row, -1 until first call
	out   []byte // reused output buffer
}

func (c *genericConverter) Convert(row []byte) []byte {
	width := len(row) / 4
	if width != c.width {
		c.width = width
		c.out = make([]byte, width*int(c.pf.BPP)/8)
	}

	order := binary.ByteOrder(binary.LittleEndian)
	if c.bigEndian {
		order = binary.BigEndian
	}

	for i := 0; i < width; i++ {
		b := uint32(row[i*4+0]) & uint32(c.pf.BlueMax)
		g := uint32(row[i*4+1]) & uint32(c.pf.GreenMax)
		r := uint32(row[i*4+2]) & uint32(c.pf.RedMax)
		word := (r << c.pf.RedShift) | (g << c.pf.GreenShift) | (b << c.pf.BlueShift)

		switch c.pf.BPP {
		case 8:
			c.out[i] = byte(word)
		case 16:
			order.PutUint16(c.out[i*2:i*2+2], uint16(word))
		case 32:
			order.PutUint32(c.out[i*4:i*4+4], word)
		}
	}
	return c.out
}

// Converter builds the RowConverter for this pixel format, or returns
// BadPixelFormat if the format is paletted or uses an unsupported bpp
// (spec.md §4.2).
func (pf PixelFormat) Converter() (RowConverter, error) {
	if pf.TrueColor == 0 {
		return nil, newProtoErr(ErrBadPixelFormat, "paletted pixel formats are not supported")
	}
	switch pf.BPP {
	case 8, 16, 32:
	default:
		return nil, newProtoErr(ErrBadPixelFormat, "unsupported bits-per-pixel: %d", pf.BPP)
	}

	// Exact match for our internal little-endian 0x00RRGGBB layout.
	if pf.BPP == 32 && pf.BigEndian == 0 &&
		pf.RedMax == 255 && pf.RedShift == 16 &&
		pf.GreenMax == 255 && pf.GreenShift == 8 &&
		pf.BlueMax == 255 && pf.BlueShift == 0 {
		return identityConverter{}, nil
	}

	// The same bytes, reinterpreted as a big-endian word: same wire bytes,
	// different shift bookkeeping for the same colours.
	if pf.BPP == 32 && pf.BigEndian != 0 &&
		pf.RedMax == 255 && pf.RedShift == 8 &&
		pf.GreenMax == 255 && pf.GreenShift == 16 &&
		pf.BlueMax == 255 && pf.BlueShift == 24 {
		return identityConverter{}, nil
	}

	return &genericConverter{pf: pf, bigEndian: pf.BigEndian != 0, width: -1}, nil
}
