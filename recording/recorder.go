// Package recording provides optional, off-by-default capture of a VNC
// session: either the raw wire bytes sent to a client (FBS-style, adapted
// from the teacher's client-side fbs-connection.go) or a periodic JPEG
// capture of the shared surface (wired onto github.com/icza/mjpeg).
package recording

// Recorder observes bytes written to a single client connection. A nil
// Recorder means no recording; the server checks for nil once per
// connection before calling Tap.
type Recorder interface {
	// Tap wraps w so every byte written through the result is also
	// recorded. name identifies the connection (e.g. the remote address)
	// for recorders that keep per-connection state.
	Tap(name string, w WriteCounter) WriteCounter
}

// WriteCounter is the subset of io.Writer recorders wrap.
type WriteCounter interface {
	Write(p []byte) (int, error)
}
