package billyfs

import (
	"io"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvanderweele/vzfs/internal/lockmgr"
	"github.com/dvanderweele/vzfs/internal/treeops"
	"github.com/dvanderweele/vzfs/internal/vzstore"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	store, err := vzstore.Open("test", "file:"+t.TempDir()+"/test.vzfs.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InsertEntity(vzstore.Entity{Path: "/", Name: "", IsLeaf: false}))
	return New(treeops.New(store), lockmgr.New(store))
}

func TestCreateWriteCloseReadRoundTrip(t *testing.T) {
	fs := newTestFS(t)

	f, err := fs.Create("/hello.txt")
	require.NoError(t, err)
	n, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, f.Close())

	f, err = fs.Open("/hello.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	require.NoError(t, f.Close())
}

func TestOpenMissingFileWithoutCreateFails(t *testing.T) {
	fs := newTestFS(t)
	_, err := fs.Open("/nope.txt")
	require.Error(t, err)
}

func TestStatDistinguishesFileAndDirectory(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.MkdirAll("/sub", 0o755))
	f, err := fs.Create("/sub/a.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	dirInfo, err := fs.Stat("/sub")
	require.NoError(t, err)
	assert.True(t, dirInfo.IsDir())

	fileInfo, err := fs.Stat("/sub/a.txt")
	require.NoError(t, err)
	assert.False(t, fileInfo.IsDir())
	assert.Equal(t, int64(1), fileInfo.Size())
}

func TestReadDirListsImmediateChildrenOnly(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.MkdirAll("/a/b", 0o755))
	f, err := fs.Create("/a/one.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := fs.ReadDir("/a")
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	assert.ElementsMatch(t, []string{"b", "one.txt"}, names)
}

func TestRenameWithinSameDirectory(t *testing.T) {
	fs := newTestFS(t)
	f, err := fs.Create("/old.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, fs.Rename("/old.txt", "/new.txt"))

	_, err = fs.Stat("/old.txt")
	assert.Error(t, err)
	_, err = fs.Stat("/new.txt")
	assert.NoError(t, err)
}

func TestRenameMovesFileAcrossDirectories(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.MkdirAll("/dest", 0o755))
	f, err := fs.Create("/moved.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, fs.Rename("/moved.txt", "/dest/moved.txt"))

	_, err = fs.Stat("/moved.txt")
	assert.Error(t, err)
	info, err := fs.Stat("/dest/moved.txt")
	require.NoError(t, err)
	assert.Equal(t, "moved.txt", info.Name())
}

func TestRenameDirectoryTransplantsDescendants(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.MkdirAll("/src/child", 0o755))
	f, err := fs.Create("/src/child/leaf.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, fs.Rename("/src", "/dst"))

	_, err = fs.Stat("/src")
	assert.Error(t, err)

	entries, err := fs.ReadDir("/dst")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "child", entries[0].Name())

	leaf, err := fs.Open("/dst/child/leaf.txt")
	require.NoError(t, err)
	content, err := io.ReadAll(leaf)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
	require.NoError(t, leaf.Close())
}

func TestRemoveRejectsNonEmptyDirectory(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.MkdirAll("/full", 0o755))
	f, err := fs.Create("/full/x.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = fs.Remove("/full")
	assert.Error(t, err)
}

func TestSymlinkMethodsReportNotSupported(t *testing.T) {
	fs := newTestFS(t)
	assert.ErrorIs(t, fs.Symlink("/a", "/b"), billy.ErrNotSupported)
	_, err := fs.Readlink("/a")
	assert.ErrorIs(t, err, billy.ErrNotSupported)
}
