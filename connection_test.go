package cairovnc

import (
	"bytes"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"
)

func newTestConnection(t *testing.T, width, height int) (*connection, net.Conn) {
	t.Helper()
	serverEnd, clientEnd := net.Pipe()
	t.Cleanup(func() { serverEnd.Close(); clientEnd.Close() })

	stride := width * 4
	surf := &fakeSurface{format: SurfaceFormatARGB32, width: width, height: height, stride: stride, data: make([]byte, stride*height)}
	srv := &Server{
		options:   &ServerOptions{},
		snapshots: NewSnapshotCache(surf, &sync.Mutex{}, 1000),
	}
	srv.options.setDefaults()

	c := &connection{
		server:    srv,
		conn:      serverEnd,
		stream:    NewByteStream(serverEnd),
		options:   srv.options,
		converter: identityConverter{},
		width:     width,
		height:    height,
		lastRows:  make([][]byte, height),
		log:       srv.options.Logger.With(),
	}
	return c, clientEnd
}

// TestFramebufferUpdateFullNonIncremental is spec.md §8 scenario 3: a
// non-incremental FramebufferUpdateRequest over a 2x2 all-zero surface.
func TestFramebufferUpdateFullNonIncremental(t *testing.T) {
	c, client := newTestConnection(t, 2, 2)
	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 256)
		n, _ := client.Read(buf)
		done <- buf[:n]
	}()

	c.updateFramebuffer(NewRegionRequest(false, 0, 0, 2, 2))

	got := <-done
	want := []byte{
		0x00, 0x00, 0x00, 0x01, // type=0, pad, rect-count=1
		0x00, 0x00, 0x00, 0x00, // x=0, y=0
		0x00, 0x02, 0x00, 0x02, // w=2, h=2
		0x00, 0x00, 0x00, 0x00, // encoding=0 (Raw)
	}
	want = append(want, make([]byte, 16)...) // 2 rows * 2 px * 4 bytes, all zero
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

// TestFramebufferUpdateIncrementalNoChange is spec.md §8 scenario 4.
func TestFramebufferUpdateIncrementalNoChange(t *testing.T) {
	c, client := newTestConnection(t, 2, 2)

	// Prime lastRows to the current (all-zero) snapshot so nothing differs.
	snap, err := c.server.snapshots.Data()
	if err != nil {
		t.Fatalf("Data: %v", err)
	}
	copy(c.lastRows, snap.Rows)

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 256)
		n, _ := client.Read(buf)
		done <- buf[:n]
	}()

	c.updateFramebuffer(NewRegionRequest(true, 0, 0, 2, 2))

	got := <-done
	want := []byte{0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x (zero rectangles)", got, want)
	}
}

// TestDesktopSizeNotification is spec.md §8 scenario 5.
func TestDesktopSizeNotification(t *testing.T) {
	c, client := newTestConnection(t, 200, 200)
	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := client.Read(buf)
		done <- buf[:n]
	}()

	c.sendDesktopSizeRect(300, 200)

	got := <-done
	want := []byte{
		0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x00,
		0x01, 0x2C, 0x00, 0xC8,
		0xFF, 0xFF, 0xFF, 0x21,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestFramebufferUpdatePartialRowRun(t *testing.T) {
	c, client := newTestConnection(t, 2, 4)

	snap, err := c.server.snapshots.Data()
	if err != nil {
		t.Fatalf("Data: %v", err)
	}
	copy(c.lastRows, snap.Rows)

	// Mutate the underlying surface rows [1,3) so they differ from what
	// was captured into lastRows, then force a fresh capture.
	surf := c.server.snapshots.surface.(*fakeSurface)
	surf.data[1*surf.stride] = 0xff
	surf.data[2*surf.stride] = 0xff
	time.Sleep(2 * time.Millisecond) // let the snapshot cache's min-period elapse

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 256)
		n, _ := client.Read(buf)
		done <- buf[:n]
	}()

	c.updateFramebuffer(NewRegionRequest(true, 0, 0, 2, 4))

	got := <-done
	if len(got) < 16 {
		t.Fatalf("response too short: %x", got)
	}
	rectCount := binary.BigEndian.Uint16(got[2:4])
	if rectCount != 1 {
		t.Fatalf("rect count = %d, want 1", rectCount)
	}
	y := binary.BigEndian.Uint16(got[6:8])
	h := binary.BigEndian.Uint16(got[10:12])
	if y != 1 || h != 2 {
		t.Fatalf("rect y=%d h=%d, want y=1 h=2", y, h)
	}
}
