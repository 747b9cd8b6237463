// Command vzfsmount mounts a VZFS filesystem as a local FUSE
// filesystem via cgofuse, driving internal/treeops/internal/lockmgr
// synchronously per syscall the same way cmd/vzfsnfs drives them
// synchronously per NFS RPC.
package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/winfsp/cgofuse/fuse"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dvanderweele/vzfs/internal/config"
	"github.com/dvanderweele/vzfs/internal/lockmgr"
	"github.com/dvanderweele/vzfs/internal/treeops"
	"github.com/dvanderweele/vzfs/internal/vzstore"
)

func main() {
	var base, fsName string

	root := &cobra.Command{
		Use:   "vzfsmount <mountpoint>",
		Short: "mount a VZFS filesystem as a local FUSE filesystem",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return run(base, fsName, args[0])
		},
	}
	root.Flags().StringVar(&base, "base", config.DefaultBaseDirectoryPath, "base directory holding config.hcl and filesystem databases")
	root.Flags().StringVar(&fsName, "fs", "default", "filesystem name to mount (created and seeded if missing)")

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("vzfsmount")
	}
}

func run(base, fsName, mountpoint string) error {
	cfg, err := config.Load(base)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDirectoryPath(), 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	dsn := vzstore.DSNFor(cfg.DataDirectoryPath(), fsName)
	store, err := vzstore.Open(fsName, dsn)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	now := time.Now().UnixMilli()
	if err := store.InsertEntity(vzstore.Entity{Path: "/", Name: "", IsLeaf: false, CreatedAt: now, UpdatedAt: now}); err != nil {
		if _, ok := err.(*vzstore.ConstraintError); !ok {
			return fmt.Errorf("seeding root: %w", err)
		}
	}

	impl := newVZFS(treeops.New(store), lockmgr.New(store))
	host := fuse.NewFileSystemHost(impl)
	host.SetCapReaddirPlus(true)

	opts := []string{
		"-o", fmt.Sprintf("uid=%d", os.Getuid()),
		"-o", fmt.Sprintf("gid=%d", os.Getgid()),
		"-o", "fsname=vzfs",
		"-o", "subtype=vzfs",
		"-o", "entry_timeout=0.0",
		"-o", "attr_timeout=0.0",
		"-o", "negative_timeout=0.0",
	}
	if runtime.GOOS == "darwin" {
		opts = append(opts, "-o", "nobrowse")
	}

	log.WithField("mountpoint", mountpoint).WithField("fs", fsName).Info("vzfsmount: mounting")
	if !host.Mount(mountpoint, opts) {
		return fmt.Errorf("mount failed at %s", mountpoint)
	}
	return nil
}
