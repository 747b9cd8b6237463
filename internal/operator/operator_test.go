package operator

import (
	"context"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvanderweele/vzfs/internal/vzerr"
)

func startActor(t *testing.T) (*Actor, context.Context) {
	t.Helper()
	// Registered first so it runs last, after the actor has shut down.
	t.Cleanup(leaktest.Check(t))

	a := New(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = a.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		a.Send(ctx, Command{Kind: Close})
		cancel()
		<-done
	})

	reply := a.Send(ctx, Command{Kind: Init, Init: InitPayload{FilesystemName: "test", Version: 1}})
	require.NoError(t, reply.Err)
	return a, ctx
}

func TestEndToEndFileLifecycle(t *testing.T) {
	a, ctx := startActor(t)

	r := a.Send(ctx, Command{Kind: CreateFile, CreateFile: CreateFilePayload{
		Name: "hello.txt", ParentPath: "/", Content: []byte("hi"),
	}})
	require.NoError(t, r.Err)
	assert.Equal(t, "/hello.txt", r.Data)

	r = a.Send(ctx, Command{Kind: ReadFile, ReadFile: PathPayload{Path: "/hello.txt"}})
	require.NoError(t, r.Err)
	rec, ok := r.Data.(FileRecord)
	require.True(t, ok)
	assert.Equal(t, []byte("hi"), rec.Content)

	r = a.Send(ctx, Command{Kind: UpdateFileTimestamp, UpdateFileTimestamp: PathPayload{Path: "/hello.txt"}})
	require.NoError(t, r.Err)

	r = a.Send(ctx, Command{Kind: UpdateFileContent, UpdateFileContent: UpdateFileContentPayload{
		Path: "/hello.txt", Content: []byte("bye"),
	}})
	require.NoError(t, r.Err)

	r = a.Send(ctx, Command{Kind: ReadFile, ReadFile: PathPayload{Path: "/hello.txt"}})
	require.NoError(t, r.Err)
	rec = r.Data.(FileRecord)
	assert.Equal(t, []byte("bye"), rec.Content)

	r = a.Send(ctx, Command{Kind: DeleteFile, DeleteFile: PathPayload{Path: "/hello.txt"}})
	require.NoError(t, r.Err)

	r = a.Send(ctx, Command{Kind: ReadFile, ReadFile: PathPayload{Path: "/hello.txt"}})
	require.Error(t, r.Err)
	assert.Equal(t, vzerr.NotFound, vzerr.Of(r.Err))
}

func TestEndToEndDirectoryLifecycle(t *testing.T) {
	a, ctx := startActor(t)

	r := a.Send(ctx, Command{Kind: CreateDirectory, CreateDirectory: CreateDirectoryPayload{
		Name: "docs", ParentPath: "/",
	}})
	require.NoError(t, r.Err)

	r = a.Send(ctx, Command{Kind: CreateFile, CreateFile: CreateFilePayload{
		Name: "a.txt", ParentPath: "/docs/", Content: []byte("x"),
	}})
	require.NoError(t, r.Err)

	r = a.Send(ctx, Command{Kind: GetDirectoryRecord, GetDirectoryRecord: OptionalPathPayload{Path: "/docs/", Present: true}})
	require.NoError(t, r.Err)
	drec := r.Data.(DirectoryRecord)
	assert.Len(t, drec.ChildKeys, 1)

	r = a.Send(ctx, Command{Kind: DeleteDirectoryIfEmpty, DeleteDirectoryIfEmpty: PathPayload{Path: "/docs/"}})
	require.Error(t, r.Err, "directory still has a child")
	assert.Equal(t, vzerr.NotEmpty, vzerr.Of(r.Err))

	r = a.Send(ctx, Command{Kind: EmptyDirectory, EmptyDirectory: PathPayload{Path: "/docs/"}})
	require.NoError(t, r.Err)

	r = a.Send(ctx, Command{Kind: DeleteDirectoryIfEmpty, DeleteDirectoryIfEmpty: PathPayload{Path: "/docs/"}})
	require.NoError(t, r.Err)
}

func TestChangeDirectoryUpdatesCwdOnly(t *testing.T) {
	a, ctx := startActor(t)

	r := a.Send(ctx, Command{Kind: CreateDirectory, CreateDirectory: CreateDirectoryPayload{Name: "sub", ParentPath: "/"}})
	require.NoError(t, r.Err)

	r = a.Send(ctx, Command{Kind: ChangeDirectory, ChangeDirectory: ChangeDirectoryPayload{NewDirectoryPath: "/sub/"}})
	require.NoError(t, r.Err)
	assert.Equal(t, "/sub", r.Data)

	r = a.Send(ctx, Command{Kind: CreateFile, CreateFile: CreateFilePayload{Name: "rel.txt", ParentPath: ".", Content: []byte("z")}})
	require.NoError(t, r.Err)
	assert.Equal(t, "/sub/rel.txt", r.Data)
}

func TestRipAndRestoreRoundTrip(t *testing.T) {
	a, ctx := startActor(t)

	r := a.Send(ctx, Command{Kind: CreateFile, CreateFile: CreateFilePayload{Name: "f.txt", ParentPath: "/", Content: []byte("data")}})
	require.NoError(t, r.Err)

	r = a.Send(ctx, Command{Kind: RipFilesystemToJSON})
	require.NoError(t, r.Err)
	backup := r.Data.(string)
	require.NotEmpty(t, backup)

	r = a.Send(ctx, Command{Kind: RestoreFilesystemFromJSON, RestoreFilesystemFromJSON: RestoreFilesystemFromJSONPayload{
		FSName: "restored", Version: 1, Backup: backup,
	}})
	require.NoError(t, r.Err)

	r = a.Send(ctx, Command{Kind: ListFilesystems})
	require.NoError(t, r.Err)
	names := r.Data.([]string)
	assert.Contains(t, names, "restored")
}

func TestContendedLockRejectsSecondAcquireOnSamePath(t *testing.T) {
	baseDir := t.TempDir()
	a1 := New(baseDir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a1.Run(ctx) }()

	r := a1.Send(ctx, Command{Kind: Init, Init: InitPayload{FilesystemName: "shared", Version: 1}})
	require.NoError(t, r.Err)

	prefix, err := a1.locks.LockPath("/", "/contended", time.Minute)
	require.NoError(t, err)
	defer a1.locks.RemoveLock(prefix)

	_, err = a1.locks.LockPath("/", "/contended", time.Minute)
	require.Error(t, err, "a second lock on the same prefix must be contended")
}
