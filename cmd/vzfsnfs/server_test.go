package main

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvanderweele/vzfs/internal/billyfs"
	"github.com/dvanderweele/vzfs/internal/lockmgr"
	"github.com/dvanderweele/vzfs/internal/treeops"
	"github.com/dvanderweele/vzfs/internal/vzstore"
)

func newTestFS(t *testing.T) *billyfs.FS {
	t.Helper()
	store, err := vzstore.Open("test", "file:"+t.TempDir()+"/test.vzfs.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InsertEntity(vzstore.Entity{Path: "/", Name: "", IsLeaf: false}))
	return billyfs.New(treeops.New(store), lockmgr.New(store))
}

func TestNewServerTCP(t *testing.T) {
	srv, err := newServer(newTestFS(t), "127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()
	assert.NotEmpty(t, srv.Addr())
}

// TestNewServerUnixSocketSurvivesStaleFile drives the unix-domain
// branch of newServer (and so netutil.Listen's stale-socket cleanup)
// the way a crashed-then-restarted vzfsnfs process would: a socket
// file left behind with nothing listening on it must not stop the
// next newServer call from binding the same path.
func TestNewServerUnixSocketSurvivesStaleFile(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "vzfsnfs.sock")

	// Leave a stale socket file behind, as a crashed process would:
	// listen, then unlink-on-close disabled before Close.
	stale, err := net.ListenUnix("unix", &net.UnixAddr{Name: sock, Net: "unix"})
	require.NoError(t, err)
	stale.SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())

	srv, err := newServer(newTestFS(t), "unix:"+sock)
	require.NoError(t, err)
	defer srv.Close()
	assert.Equal(t, sock, srv.Addr())
}
