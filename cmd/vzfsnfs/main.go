// Command vzfsnfs serves a single VZFS filesystem over NFSv3, wrapping
// internal/billyfs directly (no actor channel) the same way a local
// FUSE mount would: go-nfs drives the billy.Filesystem synchronously
// per incoming RPC, same as cgofuse drives it synchronously per
// syscall in cmd/vzfsmount.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dvanderweele/vzfs/internal/billyfs"
	"github.com/dvanderweele/vzfs/internal/config"
	"github.com/dvanderweele/vzfs/internal/lockmgr"
	"github.com/dvanderweele/vzfs/internal/treeops"
	"github.com/dvanderweele/vzfs/internal/vzstore"
)

func main() {
	base := flag.String("base", config.DefaultBaseDirectoryPath, "base directory holding config.hcl and filesystem databases")
	fsName := flag.String("fs", "default", "filesystem name to serve (created and seeded if missing)")
	addr := flag.String("addr", "127.0.0.1:0", "address to listen on (port 0 picks an ephemeral port), or unix:/path/to/socket")
	flag.Parse()

	cfg, err := config.Load(*base)
	if err != nil {
		log.WithError(err).Fatal("vzfsnfs: loading config")
	}
	if err := os.MkdirAll(cfg.DataDirectoryPath(), 0o700); err != nil {
		log.WithError(err).Fatal("vzfsnfs: creating data directory")
	}

	dsn := vzstore.DSNFor(cfg.DataDirectoryPath(), *fsName)
	store, err := vzstore.Open(*fsName, dsn)
	if err != nil {
		log.WithError(err).Fatal("vzfsnfs: opening store")
	}
	defer store.Close()

	now := time.Now().UnixMilli()
	if err := store.InsertEntity(vzstore.Entity{Path: "/", Name: "", IsLeaf: false, CreatedAt: now, UpdatedAt: now}); err != nil {
		if _, ok := err.(*vzstore.ConstraintError); !ok {
			log.WithError(err).Fatal("vzfsnfs: seeding root")
		}
	}

	fs := billyfs.New(treeops.New(store), lockmgr.New(store))
	srv, err := newServer(fs, *addr)
	if err != nil {
		log.WithError(err).Fatal("vzfsnfs: starting NFS server")
	}
	log.WithField("addr", srv.Addr()).Info("vzfsnfs: serving")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("vzfsnfs: signal received, shutting down")
	_ = srv.Close()
}
