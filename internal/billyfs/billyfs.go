// Package billyfs adapts VZFS's synchronous tree/lock primitives
// (internal/treeops, internal/lockmgr) directly to billy.Filesystem,
// giving NFS (cmd/vzfsnfs) a second,
// off-protocol consumption surface that never goes through the
// Operator's channel dispatch -- it locks and mutates the same store
// the actor does, under the same fsguard discipline.
package billyfs

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/dvanderweele/vzfs/internal/fsguard"
	"github.com/dvanderweele/vzfs/internal/lockmgr"
	"github.com/dvanderweele/vzfs/internal/treeops"
	"github.com/dvanderweele/vzfs/internal/vzerr"
)

// FS is one VZFS filesystem exposed as billy.Filesystem. root is the
// cwd every treeops/lockmgr call resolves paths against; Chroot
// returns a new FS with root advanced, the same way the tree's own cwd
// narrows on changeDirectory.
type FS struct {
	ops   *treeops.Ops
	locks *lockmgr.Manager
	root  string
}

// New adapts ops/locks (already pointed at an open filesystem database)
// to billy.Filesystem, rooted at "/".
func New(ops *treeops.Ops, locks *lockmgr.Manager) *FS {
	return &FS{ops: ops, locks: locks, root: "/"}
}

// --- billy.Basic ---

func (fs *FS) Create(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
}

func (fs *FS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

func (fs *FS) OpenFile(filename string, flag int, _ os.FileMode) (billy.File, error) {
	e, err := fs.ops.GetEntity(fs.root, filename)
	exists := err == nil
	if err != nil && vzerr.Of(err) != vzerr.NotFound {
		return nil, err
	}

	var buf []byte
	if exists {
		if !e.IsLeaf {
			return nil, &os.PathError{Op: "open", Path: filename, Err: os.ErrInvalid}
		}
		leaf, err := fs.ops.JoinContentToLeaf(e)
		if err != nil {
			return nil, err
		}
		buf = append([]byte(nil), leaf.Content...)
	} else {
		if flag&os.O_CREATE == 0 {
			return nil, &os.PathError{Op: "open", Path: filename, Err: os.ErrNotExist}
		}
		dir, name := splitParent(filename)
		if err := fsguard.WithLock(fs.locks, fs.root, dir, lockmgr.DefaultDuration, func(string) error {
			_, err := fs.ops.AddFileEntity(fs.root, name, dir, nil)
			return err
		}); err != nil {
			return nil, err
		}
	}

	if flag&os.O_TRUNC != 0 {
		buf = nil
	}
	f := &vfile{fs: fs, name: filename, buf: buf, dirty: flag&os.O_TRUNC != 0}
	if flag&os.O_APPEND != 0 {
		f.pos = int64(len(f.buf))
	}
	return f, nil
}

func (fs *FS) Stat(filename string) (os.FileInfo, error) {
	e, err := fs.ops.GetEntity(fs.root, filename)
	if err != nil {
		return nil, err
	}
	size := int64(0)
	if e.IsLeaf {
		leaf, err := fs.ops.JoinContentToLeaf(e)
		if err != nil {
			return nil, err
		}
		size = int64(len(leaf.Content))
	}
	return entityFileInfo(e, size), nil
}

// Rename covers all three of §4.3's move operations (renameFile,
// reparentLeaf, transplantAncestors), chosen by what oldpath names and
// whether its parent changes. A directory move creates the destination
// directory, transplants the old one's descendants into it, then
// deletes the old, now-empty, directory entity, since transplantAncestors
// deliberately leaves the subtree root where it was (§9).
func (fs *FS) Rename(oldpath, newpath string) error {
	return fsguard.WithTwoPathLock(fs.locks, fs.root, oldpath, newpath, lockmgr.DefaultDuration, func() error {
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

		// TransplantAncestors resolves newParentPath and fails NotFound if
		// it doesn't exist yet, so the destination directory has to be
		// created before descendants are moved into it.
		if _, err := fs.ops.AddDirectoryEntity(fs.root, newName, newDir); err != nil {
			return err
		}
		if err := fs.ops.TransplantAncestors(fs.root, e.Path, newpath); err != nil {
			return err
		}
		return fs.ops.DeleteDirectoryIfEmpty(fs.root, e.Path)
	})
}

func (fs *FS) Remove(filename string) error {
	return fsguard.WithLock(fs.locks, fs.root, filename, lockmgr.DefaultDuration, func(string) error {
		e, err := fs.ops.GetEntity(fs.root, filename)
		if err != nil {
			return err
		}
		if e.IsLeaf {
			return fs.ops.DeleteLeafEntity(fs.root, filename)
		}
		return fs.ops.DeleteDirectoryIfEmpty(fs.root, filename)
	})
}

func (fs *FS) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// --- billy.TempFile ---

func (fs *FS) TempFile(dir, prefix string) (billy.File, error) {
	if dir == "" {
		dir = "/"
	}
	return fs.Create(fs.Join(dir, prefix+uuid.NewString()))
}

// --- billy.Dir ---

func (fs *FS) ReadDir(path string) ([]os.FileInfo, error) {
	keys, err := fs.ops.GetImmediateChildKeys(fs.root, path)
	if err != nil {
		return nil, err
	}
	out := make([]os.FileInfo, 0, len(keys))
	for _, k := range keys {
		fi, err := fs.Stat(k)
		if err != nil {
			continue // a child pruned between the key listing and the stat; skip it.
		}
		out = append(out, fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (fs *FS) MkdirAll(filename string, _ os.FileMode) error {
	cur := "/"
	for _, name := range strings.Split(strings.Trim(filename, "/"), "/") {
		if name == "" {
			continue
		}
		target := cur + name + "/"
		if _, err := fs.ops.GetEntity(fs.root, target); err != nil {
			if vzerr.Of(err) != vzerr.NotFound {
				return err
			}
			parent := cur
			err := fsguard.WithLock(fs.locks, fs.root, parent, lockmgr.DefaultDuration, func(string) error {
				_, err := fs.ops.AddDirectoryEntity(fs.root, name, parent)
				return err
			})
			if err != nil && vzerr.Of(err) != vzerr.Exists {
				return err
			}
		}
		cur = target
	}
	return nil
}

// --- billy.Symlink ---
//
// VZFS's data model (§3) has no symlink entity kind; Symlink and
// Readlink report billy.ErrNotSupported, the same posture the pack's
// own read-only billy.Filesystem adapter takes for the same reason, and
// Lstat is Stat.

func (fs *FS) Lstat(filename string) (os.FileInfo, error) { return fs.Stat(filename) }

func (fs *FS) Symlink(_, _ string) error { return billy.ErrNotSupported }

func (fs *FS) Readlink(_ string) (string, error) { return "", billy.ErrNotSupported }

// --- billy.Chroot ---

func (fs *FS) Chroot(path string) (billy.Filesystem, error) {
	return chroot.New(fs, path), nil
}

func (fs *FS) Root() string { return fs.root }

// --- billy.Capable ---

func (fs *FS) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.WriteCapability | billy.SeekCapability | billy.TruncateCapability
}

func splitParent(p string) (dir, name string) {
	p = strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return "/", p
	}
	dir = p[:idx+1]
	name = p[idx+1:]
	if dir == "" {
		dir = "/"
	}
	return dir, name
}

func entityFileInfo(e treeops.Entity, size int64) os.FileInfo {
	_, name := splitParent(e.Path)
	if e.Path == "/" {
		name = "/"
	}
	return &fileInfo{
		name:    name,
		size:    size,
		dir:     !e.IsLeaf,
		modTime: time.UnixMilli(e.UpdatedAt),
	}
}

type fileInfo struct {
	name    string
	size    int64
	dir     bool
	modTime time.Time
}

func (fi *fileInfo) Name() string { return fi.name }
func (fi *fileInfo) Size() int64  { return fi.size }

// Mode builds the permission bits from the same unix.S_* constants
// p9util builds 9P Qid/mode bits from in the teacher, rather than
// hand-rolling the octal literals.
func (fi *fileInfo) Mode() os.FileMode {
	if fi.dir {
		return os.ModeDir | os.FileMode(unix.S_IRWXU|unix.S_IRGRP|unix.S_IXGRP|unix.S_IROTH|unix.S_IXOTH)
	}
	return os.FileMode(unix.S_IRUSR | unix.S_IWUSR | unix.S_IRGRP | unix.S_IROTH)
}

func (fi *fileInfo) ModTime() time.Time { return fi.modTime }
func (fi *fileInfo) IsDir() bool        { return fi.dir }
func (fi *fileInfo) Sys() interface{}   { return nil }

// Compile-time interface checks.
var (
	_ billy.Filesystem = (*FS)(nil)
	_ billy.Capable    = (*FS)(nil)
)
