package billyfs

import (
	"io"
	"os"
	"sync"

	"github.com/dvanderweele/vzfs/internal/lockmgr"

	"github.com/dvanderweele/vzfs/internal/fsguard"
)

// vfile is an open leaf: the whole content is read into buf at Open
// time and written back, if touched, in one piece at Close -- the same
// buffer-then-splice-on-Close shape the pack's own billy.File adapter
// uses for its writable nodes, since VZFS's content rows are whole
// blobs rather than anything seekable-on-disk.
type vfile struct {
	fs   *FS
	name string

	mu     sync.Mutex
	buf    []byte
	pos    int64
	dirty  bool
	closed bool
}

func (f *vfile) Name() string { return f.name }

func (f *vfile) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, os.ErrClosed
	}
	if f.pos >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *vfile) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, os.ErrClosed
	}
	if off >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *vfile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, os.ErrClosed
	}
	end := f.pos + int64(len(p))
	if end > int64(len(f.buf)) {
		grown := make([]byte, end)
		copy(grown, f.buf)
		f.buf = grown
	}
	n := copy(f.buf[f.pos:end], p)
	f.pos += int64(n)
	f.dirty = true
	return n, nil
}

func (f *vfile) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = f.pos + offset
	case io.SeekEnd:
		newPos = int64(len(f.buf)) + offset
	}
	if newPos < 0 {
		newPos = 0
	}
	f.pos = newPos
	return f.pos, nil
}

func (f *vfile) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if size < int64(len(f.buf)) {
		f.buf = f.buf[:size]
	} else if size > int64(len(f.buf)) {
		grown := make([]byte, size)
		copy(grown, f.buf)
		f.buf = grown
	}
	f.dirty = true
	return nil
}

func (f *vfile) Lock() error   { return nil }
func (f *vfile) Unlock() error { return nil }

// Close is the commit point: an untouched file costs nothing beyond
// the read it already did at Open; a written-to file is flushed back
// through the same lock/resolve path every other mutation uses.
func (f *vfile) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	dirty := f.dirty
	buf := f.buf
	f.mu.Unlock()

	if !dirty {
		return nil
	}
	return fsguard.WithLock(f.fs.locks, f.fs.root, f.name, lockmgr.DefaultDuration, func(string) error {
		return f.fs.ops.UpdateFile(f.fs.root, f.name, buf)
	})
}
