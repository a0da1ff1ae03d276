package recording

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FBSRecorder captures the bytes a connection sends to each client into a
// chunk-length-prefixed file, one file per connection, under Dir. Each
// chunk is written as {u32 length, length bytes}, the same wire shape as
// the teacher's FbsConnection.Read (fbs-connection.go), just applied to the
// server's outbound stream instead of a client's inbound one.
type FBSRecorder struct {
	Dir string

	mu    sync.Mutex
	files map[string]*os.File
}

// NewFBSRecorder builds a recorder that writes capture files under dir.
// The directory is not created here; callers own filesystem setup.
func NewFBSRecorder(dir string) *FBSRecorder {
	return &FBSRecorder{Dir: dir, files: make(map[string]*os.File)}
}

// Tap wraps w so every write is also appended, length-prefixed, to name's
// capture file. The capture file is created lazily on first write.
func (r *FBSRecorder) Tap(name string, w WriteCounter) WriteCounter {
	return &fbsTap{recorder: r, name: name, w: w}
}

func (r *FBSRecorder) fileFor(name string) (*os.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.files[name]; ok {
		return f, nil
	}
	path := filepath.Join(r.Dir, sanitizeName(name)+".fbs")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recording: create capture file: %w", err)
	}
	r.files[name] = f
	return f, nil
}

// Close closes every capture file this recorder has opened.
func (r *FBSRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, f := range r.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type fbsTap struct {
	recorder *FBSRecorder
	name     string
	w        WriteCounter
}

func (t *fbsTap) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if n > 0 {
		if f, fErr := t.recorder.fileFor(t.name); fErr == nil {
			var hdr [4]byte
			binary.BigEndian.PutUint32(hdr[:], uint32(n))
			f.Write(hdr[:])
			f.Write(p[:n])
		}
	}
	return n, err
}

func sanitizeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
