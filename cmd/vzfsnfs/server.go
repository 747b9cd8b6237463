package main

import (
	"fmt"
	"net"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"

	"github.com/dvanderweele/vzfs/internal/netutil"
)

// server manages the NFSv3 server lifecycle: one listener (TCP or, for
// addr values prefixed "unix:", a unix-domain socket for serving a
// single local mount without opening a network port), one billy-backed
// handler, serving until Close stops the listener.
type server struct {
	listener net.Listener
	addr     string
}

// newServer starts an NFSv3 server bound to addr, backed by fs. An
// addr of the form "unix:/path/to/socket" listens on a unix-domain
// socket instead of TCP; anything else is treated as a TCP address.
// Listening goes through netutil.Listen rather than net.Listen
// directly so a stale unix-domain socket left behind by a crashed
// prior instance gets cleaned up automatically; for the "tcp" network
// it behaves exactly like net.Listen.
func newServer(fs billy.Filesystem, addr string) (*server, error) {
	network := "tcp"
	if path, ok := strings.CutPrefix(addr, "unix:"); ok {
		network, addr = "unix", path
	}
	listener, err := netutil.Listen(network, addr)
	if err != nil {
		return nil, fmt.Errorf("vzfsnfs: listen %s: %w", addr, err)
	}

	handler := nfshelper.NewNullAuthHandler(fs)
	cacheHelper := nfshelper.NewCachingHandler(handler, 4096)

	go func() {
		_ = nfs.Serve(listener, cacheHelper)
	}()

	return &server{listener: listener, addr: listener.Addr().String()}, nil
}

func (s *server) Addr() string {
	return s.addr
}

func (s *server) Close() error {
	return s.listener.Close()
}
