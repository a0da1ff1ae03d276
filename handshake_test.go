package cairovnc

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"
)

// TestHandshakeNoAuthProtocol38 is spec.md §8 scenario 1: the full literal
// byte sequence of a no-auth handshake under protocol 3.8.
func TestHandshakeNoAuthProtocol38(t *testing.T) {
	serverEnd, clientEnd := net.Pipe()
	defer serverEnd.Close()
	defer clientEnd.Close()

	width, height := 200, 200
	surf := &fakeSurface{
		format: SurfaceFormatARGB32, width: width, height: height,
		stride: width * 4, data: make([]byte, width*4*height),
	}
	srv := &Server{
		options:     &ServerOptions{DisplayName: "Cairo"},
		security:    buildSecurityRegistry("", ""),
		snapshots:   NewSnapshotCache(surf, &sync.Mutex{}, 30),
		displayName: "Cairo",
	}
	srv.options.setDefaults()
	srv.options.DisplayName = "Cairo"
	srv.displayName = "Cairo"

	c := newConnection(srv, serverEnd)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.serve()
	}()

	// Server writes "RFB 003.008\n".
	versionBuf := make([]byte, len(ProtocolVersion))
	if _, err := clientEnd.Read(versionBuf); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if string(versionBuf) != "RFB 003.008\n" {
		t.Fatalf("server version = %q, want %q", versionBuf, "RFB 003.008\n")
	}

	// Client writes "RFB 003.008\n".
	if _, err := clientEnd.Write([]byte("RFB 003.008\n")); err != nil {
		t.Fatalf("write version: %v", err)
	}

	// Server writes [0x01, 0x01] (one security type: None).
	secTypes := make([]byte, 2)
	if _, err := clientEnd.Read(secTypes); err != nil {
		t.Fatalf("read security types: %v", err)
	}
	if !bytes.Equal(secTypes, []byte{0x01, 0x01}) {
		t.Fatalf("security types = %x, want [01 01]", secTypes)
	}

	// Client writes [0x01] (choose None).
	if _, err := clientEnd.Write([]byte{0x01}); err != nil {
		t.Fatalf("write security choice: %v", err)
	}

	// Server writes [0x00,0x00,0x00,0x00] (SecurityResult OK).
	result := make([]byte, 4)
	if _, err := clientEnd.Read(result); err != nil {
		t.Fatalf("read security result: %v", err)
	}
	if !bytes.Equal(result, []byte{0x00, 0x00, 0x00, 0x00}) {
		t.Fatalf("security result = %x, want [00 00 00 00]", result)
	}

	// Client writes [0x01] (shared).
	if _, err := clientEnd.Write([]byte{0x01}); err != nil {
		t.Fatalf("write shared flag: %v", err)
	}

	// Server writes ServerInit: w=200,h=200, canonical 32-bit BGRX format, name "Cairo".
	serverInit := make([]byte, 4+PixelFormatLen+4+len("Cairo"))
	if _, err := readFull(clientEnd, serverInit); err != nil {
		t.Fatalf("read server init: %v", err)
	}
	if w := int(serverInit[0])<<8 | int(serverInit[1]); w != 200 {
		t.Fatalf("width = %d, want 200", w)
	}
	if h := int(serverInit[2])<<8 | int(serverInit[3]); h != 200 {
		t.Fatalf("height = %d, want 200", h)
	}
	nameLen := int(serverInit[4+PixelFormatLen])<<24 | int(serverInit[4+PixelFormatLen+1])<<16 |
		int(serverInit[4+PixelFormatLen+2])<<8 | int(serverInit[4+PixelFormatLen+3])
	if nameLen != len("Cairo") {
		t.Fatalf("name length = %d, want %d", nameLen, len("Cairo"))
	}
	name := string(serverInit[4+PixelFormatLen+4:])
	if name != "Cairo" {
		t.Fatalf("name = %q, want %q", name, "Cairo")
	}

	clientEnd.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serve did not return after client closed")
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
