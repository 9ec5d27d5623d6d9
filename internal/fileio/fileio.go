// Package fileio offers positional read/write access to a single file with
// byte-range reader/writer concurrency semantics: a write range blocks any
// overlapping read or write until it completes, while non-overlapping
// writes and reads against untouched regions proceed concurrently.
package fileio

import (
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/d-bee/dbee/internal/dbeeerr"
)

// Stats tracks coordinator activity for diagnostics.
type Stats struct {
	Reads        atomic.Int64
	Writes       atomic.Int64
	RangeWaits   atomic.Int64
	BytesWritten atomic.Int64
	BytesRead    atomic.Int64
}

type writeRange struct {
	offset int64
	length int64
}

func overlaps(a, b writeRange) bool {
	return a.offset < b.offset+b.length && b.offset < a.offset+a.length
}

// Handle coordinates positional reads and writes against one *os.File.
type Handle struct {
	f *os.File

	mu       sync.Mutex
	cond     *sync.Cond
	writing  []writeRange
	poisoned bool

	Stats Stats
}

// Open wraps f (caller retains ownership of closing it).
func Open(f *os.File) *Handle {
	h := &Handle{f: f}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// OpenFile opens (creating if necessary) the file at path and wraps it.
func OpenFile(path string) (*Handle, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, dbeeerr.Wrap(dbeeerr.Storage, "open file", err)
	}
	return Open(f), nil
}

func (h *Handle) Close() error {
	return h.f.Close()
}

func (h *Handle) waitForRange(r writeRange) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	waited := false
	for h.rangeBusyLocked(r) {
		if h.poisoned {
			return dbeeerr.New(dbeeerr.Internal, "file handle coordination poisoned")
		}
		if !waited {
			h.Stats.RangeWaits.Add(1)
			waited = true
		}
		h.cond.Wait()
	}
	return nil
}

func (h *Handle) rangeBusyLocked(r writeRange) bool {
	for _, w := range h.writing {
		if overlaps(w, r) {
			return true
		}
	}
	return false
}

// beginWrite waits for r to be free and registers it under the same hold
// of h.mu, so no overlapping writer can slip in between the check and the
// registration.
func (h *Handle) beginWrite(r writeRange) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	waited := false
	for h.rangeBusyLocked(r) {
		if h.poisoned {
			return dbeeerr.New(dbeeerr.Internal, "file handle coordination poisoned")
		}
		if !waited {
			h.Stats.RangeWaits.Add(1)
			waited = true
		}
		h.cond.Wait()
	}
	h.writing = append(h.writing, r)
	return nil
}

func (h *Handle) endWrite(r writeRange) {
	h.mu.Lock()
	for i, w := range h.writing {
		if w == r {
			h.writing = append(h.writing[:i], h.writing[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
	h.cond.Broadcast()
}

// ReadAt returns exactly length bytes starting at offset; bytes past EOF
// read as zero.
func (h *Handle) ReadAt(offset int64, length int) ([]byte, error) {
	r := writeRange{offset: offset, length: int64(length)}
	if err := h.waitForRange(r); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	n, err := h.f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, dbeeerr.Wrap(dbeeerr.Storage, "read_at", err)
	}
	h.Stats.Reads.Add(1)
	h.Stats.BytesRead.Add(int64(n))
	return buf, nil
}

// WriteAt writes bytes at offset, extending the file if needed.
func (h *Handle) WriteAt(offset int64, bytes []byte) error {
	r := writeRange{offset: offset, length: int64(len(bytes))}
	if err := h.beginWrite(r); err != nil {
		return err
	}
	defer h.endWrite(r)
	n, err := h.f.WriteAt(bytes, offset)
	if err != nil {
		return dbeeerr.Wrap(dbeeerr.Storage, "write_at", err)
	}
	h.Stats.Writes.Add(1)
	h.Stats.BytesWritten.Add(int64(n))
	return nil
}

// Size returns the current file size.
func (h *Handle) Size() (int64, error) {
	info, err := h.f.Stat()
	if err != nil {
		return 0, dbeeerr.Wrap(dbeeerr.Storage, "stat", err)
	}
	return info.Size(), nil
}

// Sync flushes file contents to stable storage.
func (h *Handle) Sync() error {
	if err := h.f.Sync(); err != nil {
		return dbeeerr.Wrap(dbeeerr.Storage, "sync", err)
	}
	return nil
}
