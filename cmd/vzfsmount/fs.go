// vzfs implements fuse.FileSystemInterface (via cgofuse) directly
// against internal/treeops and internal/lockmgr, the same shape
// cmd/musclefs's ops type wraps the tree's core for a 9P server: one
// struct holding the domain primitives, one method per protocol verb,
// translating VZFS error kinds to the verb's native failure signal
// (9P's Rerror there, an errno here).
package main

import (
	"sync"
	"time"

	"github.com/winfsp/cgofuse/fuse"
	"golang.org/x/sys/unix"

	"github.com/dvanderweele/vzfs/internal/fsguard"
	"github.com/dvanderweele/vzfs/internal/lockmgr"
	"github.com/dvanderweele/vzfs/internal/treeops"
	"github.com/dvanderweele/vzfs/internal/vzerr"
)

type vzfs struct {
	fuse.FileSystemBase

	ops   *treeops.Ops
	locks *lockmgr.Manager
	root  string

	mu      sync.Mutex
	nextFh  uint64
	handles map[uint64]*handle
}

// handle is an open file's in-memory buffer, keyed by the fh FUSE hands
// back on every subsequent Read/Write/Release -- Close's commit point
// in internal/billyfs becomes Release's commit point here.
type handle struct {
	path  string
	buf   []byte
	dirty bool
}

func newVZFS(ops *treeops.Ops, locks *lockmgr.Manager) *vzfs {
	return &vzfs{ops: ops, locks: locks, root: "/", handles: make(map[uint64]*handle)}
}

// errno translates a VZFS error kind to the errno FUSE expects back
// from every interface method, negative per cgofuse's convention.
func errno(err error) int {
	if err == nil {
		return 0
	}
	switch vzerr.Of(err) {
	case vzerr.NotFound:
		return -fuse.ENOENT
	case vzerr.NotALeaf:
		return -fuse.EISDIR
	case vzerr.NotADirectory:
		return -fuse.ENOTDIR
	case vzerr.Exists:
		return -fuse.EEXIST
	case vzerr.NotEmpty:
		return -fuse.ENOTEMPTY
	case vzerr.InvalidPath:
		return -fuse.EINVAL
	case vzerr.Contended, vzerr.AlreadyEmpty:
		return -fuse.EBUSY
	default:
		return -fuse.EIO
	}
}

func (fs *vzfs) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	e, err := fs.ops.GetEntity(fs.root, path)
	if err != nil {
		return errno(err)
	}
	size := int64(0)
	if e.IsLeaf {
		if fh != invalidHandle {
			fs.mu.Lock()
			if h, ok := fs.handles[fh]; ok {
				size = int64(len(h.buf))
			}
			fs.mu.Unlock()
		} else {
			leaf, err := fs.ops.JoinContentToLeaf(e)
			if err != nil {
				return errno(err)
			}
			size = int64(len(leaf.Content))
		}
	}
	fillStat(stat, e, size)
	return 0
}

func (fs *vzfs) Opendir(path string) (int, uint64) {
	if _, err := fs.ops.GetEntity(fs.root, path); err != nil {
		return errno(err), invalidHandle
	}
	return 0, invalidHandle
}

func (fs *vzfs) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, _ int64, _ uint64) int {
	keys, err := fs.ops.GetImmediateChildKeys(fs.root, path)
	if err != nil {
		return errno(err)
	}
	fill(".", nil, 0)
	fill("..", nil, 0)
	for _, k := range keys {
		e, err := fs.ops.GetEntity(fs.root, k)
		if err != nil {
			continue // pruned between the key listing and the stat; skip it.
		}
		_, name := splitParent(e.Path)
		var stat fuse.Stat_t
		fillStat(&stat, e, 0)
		if !fill(name, &stat, 0) {
			break
		}
	}
	return 0
}

func (fs *vzfs) Mkdir(path string, _ uint32) int {
	dir, name := splitParent(path)
	err := fsguard.WithLock(fs.locks, fs.root, dir, lockmgr.DefaultDuration, func(string) error {
		_, err := fs.ops.AddDirectoryEntity(fs.root, name, dir)
		return err
	})
	return errno(err)
}

func (fs *vzfs) Rmdir(path string) int {
	err := fsguard.WithLock(fs.locks, fs.root, path, lockmgr.DefaultDuration, func(string) error {
		return fs.ops.DeleteDirectoryIfEmpty(fs.root, path)
	})
	return errno(err)
}

func (fs *vzfs) Create(path string, _ int, _ uint32) (int, uint64) {
	dir, name := splitParent(path)
	err := fsguard.WithLock(fs.locks, fs.root, dir, lockmgr.DefaultDuration, func(string) error {
		_, err := fs.ops.AddFileEntity(fs.root, name, dir, nil)
		return err
	})
	if err != nil {
		return errno(err), invalidHandle
	}
	return fs.openHandle(path, nil)
}

func (fs *vzfs) Open(path string, _ int) (int, uint64) {
	e, err := fs.ops.GetEntity(fs.root, path)
	if err != nil {
		return errno(err), invalidHandle
	}
	if !e.IsLeaf {
		return -fuse.EISDIR, invalidHandle
	}
	leaf, err := fs.ops.JoinContentToLeaf(e)
	if err != nil {
		return errno(err), invalidHandle
	}
	return fs.openHandle(path, append([]byte(nil), leaf.Content...))
}

func (fs *vzfs) openHandle(path string, buf []byte) (int, uint64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.nextFh++
	fh := fs.nextFh
	fs.handles[fh] = &handle{path: path, buf: buf}
	return 0, fh
}

func (fs *vzfs) Read(_ string, buff []byte, ofst int64, fh uint64) int {
	fs.mu.Lock()
	h, ok := fs.handles[fh]
	fs.mu.Unlock()
	if !ok {
		return -fuse.EBADF
	}
	if ofst >= int64(len(h.buf)) {
		return 0
	}
	n := copy(buff, h.buf[ofst:])
	return n
}

func (fs *vzfs) Write(_ string, buff []byte, ofst int64, fh uint64) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, ok := fs.handles[fh]
	if !ok {
		return -fuse.EBADF
	}
	end := ofst + int64(len(buff))
	if end > int64(len(h.buf)) {
		grown := make([]byte, end)
		copy(grown, h.buf)
		h.buf = grown
	}
	copy(h.buf[ofst:end], buff)
	h.dirty = true
	return len(buff)
}

func (fs *vzfs) Truncate(path string, size int64, fh uint64) int {
	if fh == invalidHandle {
		return fs.truncateOnDisk(path, size)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, ok := fs.handles[fh]
	if !ok {
		return -fuse.EBADF
	}
	h.buf = resize(h.buf, size)
	h.dirty = true
	return 0
}

func (fs *vzfs) truncateOnDisk(path string, size int64) int {
	e, err := fs.ops.GetEntity(fs.root, path)
	if err != nil {
		return errno(err)
	}
	leaf, err := fs.ops.JoinContentToLeaf(e)
	if err != nil {
		return errno(err)
	}
	body := resize(leaf.Content, size)
	err = fsguard.WithLock(fs.locks, fs.root, path, lockmgr.DefaultDuration, func(string) error {
		return fs.ops.UpdateFile(fs.root, path, body)
	})
	return errno(err)
}

func resize(buf []byte, size int64) []byte {
	if size <= int64(len(buf)) {
		return append([]byte(nil), buf[:size]...)
	}
	grown := make([]byte, size)
	copy(grown, buf)
	return grown
}

func (fs *vzfs) Release(_ string, fh uint64) int {
	fs.mu.Lock()
	h, ok := fs.handles[fh]
	delete(fs.handles, fh)
	fs.mu.Unlock()
	if !ok {
		return -fuse.EBADF
	}
	if !h.dirty {
		return 0
	}
	err := fsguard.WithLock(fs.locks, fs.root, h.path, lockmgr.DefaultDuration, func(string) error {
		return fs.ops.UpdateFile(fs.root, h.path, h.buf)
	})
	return errno(err)
}

func (fs *vzfs) Unlink(path string) int {
	err := fsguard.WithLock(fs.locks, fs.root, path, lockmgr.DefaultDuration, func(string) error {
		return fs.ops.DeleteLeafEntity(fs.root, path)
	})
	return errno(err)
}

func (fs *vzfs) Rename(oldpath, newpath string) int {
	err := fsguard.WithTwoPathLock(fs.locks, fs.root, oldpath, newpath, lockmgr.DefaultDuration, func() error {
		e, err := fs.ops.GetEntity(fs.root, oldpath)
		if err != nil {
			return err
		}
		newDir, newName := splitParent(newpath)

		if e.IsLeaf {
			oldDir, _ := splitParent(oldpath)
			if oldDir == newDir {
				return fs.ops.RenameFile(fs.root, oldpath, newName)
			}
			if err := fs.ops.ReparentLeaf(fs.root, oldpath, newDir); err != nil {
				return err
			}
			if newName == e.Name {
				return nil
			}
			return fs.ops.RenameFile(fs.root, newDir+e.Name, newName)
		}

		if _, err := fs.ops.AddDirectoryEntity(fs.root, newName, newDir); err != nil {
			return err
		}
		if err := fs.ops.TransplantAncestors(fs.root, e.Path, newpath); err != nil {
			return err
		}
		return fs.ops.DeleteDirectoryIfEmpty(fs.root, e.Path)
	})
	return errno(err)
}

func (fs *vzfs) Utimens(path string, _ []fuse.Timespec) int {
	err := fsguard.WithLock(fs.locks, fs.root, path, lockmgr.DefaultDuration, func(string) error {
		return fs.ops.UpdateFileTimestamp(fs.root, path)
	})
	return errno(err)
}

const invalidHandle = ^uint64(0)

func fillStat(stat *fuse.Stat_t, e treeops.Entity, size int64) {
	*stat = fuse.Stat_t{}
	if e.IsLeaf {
		stat.Mode = uint32(fuse.S_IFREG | unix.S_IRUSR | unix.S_IWUSR | unix.S_IRGRP | unix.S_IROTH)
		stat.Size = size
	} else {
		stat.Mode = uint32(fuse.S_IFDIR | unix.S_IRWXU | unix.S_IRGRP | unix.S_IXGRP | unix.S_IROTH | unix.S_IXOTH)
		stat.Nlink = 2
	}
	t := time.UnixMilli(e.UpdatedAt)
	mtime := fuse.Timespec{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
	stat.Mtim = mtime
	stat.Ctim = mtime
	stat.Atim = mtime
}

func splitParent(p string) (dir, name string) {
	trimmed := p
	for len(trimmed) > 1 && trimmed[len(trimmed)-1] == '/' {
		trimmed = trimmed[:len(trimmed)-1]
	}
	idx := -1
	for i := len(trimmed) - 1; i >= 0; i-- {
		if trimmed[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "/", trimmed
	}
	if idx == 0 {
		return "/", trimmed[1:]
	}
	return trimmed[:idx] + "/", trimmed[idx+1:]
}

var _ fuse.FileSystemInterface = (*vzfs)(nil)
