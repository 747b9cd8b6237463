package treeops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvanderweele/vzfs/internal/vzerr"
	"github.com/dvanderweele/vzfs/internal/vzstore"
)

func newTestOps(t *testing.T) *Ops {
	t.Helper()
	store, err := vzstore.Open("test", "file:"+t.TempDir()+"/test.vzfs.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InsertEntity(vzstore.Entity{Path: "/", Name: "", IsLeaf: false}))
	return New(store)
}

func kindOf(t *testing.T, err error) vzerr.Kind {
	t.Helper()
	require.Error(t, err)
	return vzerr.Of(err)
}

func TestAddFileEntityAndGetEntity(t *testing.T) {
	o := newTestOps(t)

	e, err := o.AddFileEntity("/", "a.txt", "/", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "/a.txt", e.Path)
	assert.True(t, e.IsLeaf)

	got, err := o.GetEntity("/", "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "/a.txt", got.Path)

	joined, err := o.JoinContentToLeaf(got)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), joined.Content)
}

func TestAddFileEntityInvalidNameIsInvalidPath(t *testing.T) {
	o := newTestOps(t)
	_, err := o.AddFileEntity("/", "a/b", "/", nil)
	assert.Equal(t, vzerr.InvalidPath, kindOf(t, err))
}

func TestAddFileEntityDuplicateIsExists(t *testing.T) {
	o := newTestOps(t)
	_, err := o.AddFileEntity("/", "a.txt", "/", nil)
	require.NoError(t, err)
	_, err = o.AddFileEntity("/", "a.txt", "/", nil)
	assert.Equal(t, vzerr.Exists, kindOf(t, err))
}

func TestAddFileEntityUnderLeafIsNotADirectory(t *testing.T) {
	o := newTestOps(t)
	_, err := o.AddFileEntity("/", "a.txt", "/", nil)
	require.NoError(t, err)
	_, err = o.AddFileEntity("/", "b.txt", "/a.txt", nil)
	assert.Equal(t, vzerr.NotADirectory, kindOf(t, err))
}

func TestAddDirectoryEntityAndImmediateChildKeys(t *testing.T) {
	o := newTestOps(t)
	_, err := o.AddDirectoryEntity("/", "sub", "/")
	require.NoError(t, err)
	_, err = o.AddFileEntity("/", "a.txt", "/sub", nil)
	require.NoError(t, err)

	keys, err := o.GetImmediateChildKeys("/", "/sub")
	require.NoError(t, err)
	assert.Equal(t, []string{"/sub/a.txt"}, keys)
}

func TestGetImmediateChildKeysOnLeafIsNotADirectory(t *testing.T) {
	o := newTestOps(t)
	_, err := o.AddFileEntity("/", "a.txt", "/", nil)
	require.NoError(t, err)
	_, err = o.GetImmediateChildKeys("/", "/a.txt")
	assert.Equal(t, vzerr.NotADirectory, kindOf(t, err))
}

func TestGetEntityMissingIsNotFound(t *testing.T) {
	o := newTestOps(t)
	_, err := o.GetEntity("/", "/nope")
	assert.Equal(t, vzerr.NotFound, kindOf(t, err))
}

func TestDeleteLeafEntity(t *testing.T) {
	o := newTestOps(t)
	_, err := o.AddFileEntity("/", "a.txt", "/", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, o.DeleteLeafEntity("/", "/a.txt"))
	_, err = o.GetEntity("/", "/a.txt")
	assert.Equal(t, vzerr.NotFound, kindOf(t, err))
}

func TestDeleteLeafEntityOnDirectoryIsNotALeaf(t *testing.T) {
	o := newTestOps(t)
	_, err := o.AddDirectoryEntity("/", "sub", "/")
	require.NoError(t, err)
	err = o.DeleteLeafEntity("/", "/sub")
	assert.Equal(t, vzerr.NotALeaf, kindOf(t, err))
}

func TestDeleteDirectoryIfEmpty(t *testing.T) {
	o := newTestOps(t)
	_, err := o.AddDirectoryEntity("/", "sub", "/")
	require.NoError(t, err)
	require.NoError(t, o.DeleteDirectoryIfEmpty("/", "/sub"))

	_, err = o.GetEntity("/", "/sub")
	assert.Equal(t, vzerr.NotFound, kindOf(t, err))
}

func TestDeleteDirectoryIfEmptyRefusesRoot(t *testing.T) {
	o := newTestOps(t)
	err := o.DeleteDirectoryIfEmpty("/", "/")
	assert.Equal(t, vzerr.InvalidPath, kindOf(t, err))
}

func TestDeleteDirectoryIfEmptyRefusesNonEmpty(t *testing.T) {
	o := newTestOps(t)
	_, err := o.AddDirectoryEntity("/", "sub", "/")
	require.NoError(t, err)
	_, err = o.AddFileEntity("/", "a.txt", "/sub", nil)
	require.NoError(t, err)

	err = o.DeleteDirectoryIfEmpty("/", "/sub")
	assert.Equal(t, vzerr.NotEmpty, kindOf(t, err))
}

func TestDeleteDirectoryIfEmptyRefusesCwdPrefix(t *testing.T) {
	o := newTestOps(t)
	_, err := o.AddDirectoryEntity("/", "sub", "/")
	require.NoError(t, err)
	err = o.DeleteDirectoryIfEmpty("/sub/", "/sub")
	assert.Equal(t, vzerr.InvalidPath, kindOf(t, err))
}

func TestEmptyDirectory(t *testing.T) {
	o := newTestOps(t)
	_, err := o.AddDirectoryEntity("/", "sub", "/")
	require.NoError(t, err)
	_, err = o.AddFileEntity("/", "a.txt", "/sub", []byte("x"))
	require.NoError(t, err)
	_, err = o.AddDirectoryEntity("/", "nested", "/sub")
	require.NoError(t, err)

	require.NoError(t, o.EmptyDirectory("/", "/sub"))

	keys, err := o.GetImmediateChildKeys("/", "/sub")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = o.GetEntity("/", "/sub")
	require.NoError(t, err)
}

func TestEmptyDirectoryAlreadyEmpty(t *testing.T) {
	o := newTestOps(t)
	_, err := o.AddDirectoryEntity("/", "sub", "/")
	require.NoError(t, err)
	err = o.EmptyDirectory("/", "/sub")
	assert.Equal(t, vzerr.AlreadyEmpty, kindOf(t, err))
}

func TestUpdateFileAndTimestamp(t *testing.T) {
	o := newTestOps(t)
	e, err := o.AddFileEntity("/", "a.txt", "/", []byte("v1"))
	require.NoError(t, err)

	require.NoError(t, o.UpdateFile("/", "/a.txt", []byte("v2")))
	got, err := o.GetEntity("/", "/a.txt")
	require.NoError(t, err)
	joined, err := o.JoinContentToLeaf(got)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), joined.Content)
	assert.GreaterOrEqual(t, got.UpdatedAt, e.UpdatedAt)

	require.NoError(t, o.UpdateFileTimestamp("/", "/a.txt"))
}

func TestRenameFile(t *testing.T) {
	o := newTestOps(t)
	_, err := o.AddFileEntity("/", "a.txt", "/", []byte("hi"))
	require.NoError(t, err)

	require.NoError(t, o.RenameFile("/", "/a.txt", "b.txt"))

	_, err = o.GetEntity("/", "/a.txt")
	assert.Equal(t, vzerr.NotFound, kindOf(t, err))

	got, err := o.GetEntity("/", "/b.txt")
	require.NoError(t, err)
	joined, err := o.JoinContentToLeaf(got)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), joined.Content)
}

func TestRenameFileCollisionIsExists(t *testing.T) {
	o := newTestOps(t)
	_, err := o.AddFileEntity("/", "a.txt", "/", nil)
	require.NoError(t, err)
	_, err = o.AddFileEntity("/", "b.txt", "/", nil)
	require.NoError(t, err)

	err = o.RenameFile("/", "/a.txt", "b.txt")
	assert.Equal(t, vzerr.Exists, kindOf(t, err))

	// Original is still present: the probe-before-delete discipline.
	_, err = o.GetEntity("/", "/a.txt")
	require.NoError(t, err)
}

func TestReparentLeaf(t *testing.T) {
	o := newTestOps(t)
	_, err := o.AddDirectoryEntity("/", "sub", "/")
	require.NoError(t, err)
	_, err = o.AddFileEntity("/", "a.txt", "/", []byte("hi"))
	require.NoError(t, err)

	require.NoError(t, o.ReparentLeaf("/", "/a.txt", "/sub"))

	_, err = o.GetEntity("/", "/a.txt")
	assert.Equal(t, vzerr.NotFound, kindOf(t, err))

	got, err := o.GetEntity("/", "/sub/a.txt")
	require.NoError(t, err)
	joined, err := o.JoinContentToLeaf(got)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), joined.Content)
}

func TestTransplantAncestors(t *testing.T) {
	o := newTestOps(t)
	_, err := o.AddDirectoryEntity("/", "old", "/")
	require.NoError(t, err)
	_, err = o.AddDirectoryEntity("/", "new", "/")
	require.NoError(t, err)
	_, err = o.AddFileEntity("/", "a.txt", "/old", []byte("hi"))
	require.NoError(t, err)
	_, err = o.AddDirectoryEntity("/", "nested", "/old")
	require.NoError(t, err)
	_, err = o.AddFileEntity("/", "b.txt", "/old/nested", []byte("bye"))
	require.NoError(t, err)

	require.NoError(t, o.TransplantAncestors("/", "/old", "/new"))

	got, err := o.GetEntity("/", "/new/a.txt")
	require.NoError(t, err)
	joined, err := o.JoinContentToLeaf(got)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), joined.Content)

	got, err = o.GetEntity("/", "/new/nested/b.txt")
	require.NoError(t, err)
	joined, err = o.JoinContentToLeaf(got)
	require.NoError(t, err)
	assert.Equal(t, []byte("bye"), joined.Content)

	keys, err := o.GetImmediateChildKeys("/", "/old")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestTransplantAncestorsRefusesMovingIntoOwnSubtree(t *testing.T) {
	o := newTestOps(t)
	_, err := o.AddDirectoryEntity("/", "old", "/")
	require.NoError(t, err)
	_, err = o.AddDirectoryEntity("/", "nested", "/old")
	require.NoError(t, err)

	err = o.TransplantAncestors("/", "/old", "/old/nested")
	assert.Equal(t, vzerr.InvalidPath, kindOf(t, err))
}
