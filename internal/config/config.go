// Package config loads the settings a VZFS daemon needs at startup:
// where filesystem databases live, what address to listen on, and the
// default lock duration new actors should use.
package config

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclsimple"
	log "github.com/sirupsen/logrus"
)

// DefaultBaseDirectoryPath is where vzfs commands store their
// filesystem databases and config file. It defaults to $VZFS_BASE if
// set, otherwise $HOME/lib/vzfs. Commands may override with -base.
var DefaultBaseDirectoryPath string

func init() {
	if base := os.Getenv("VZFS_BASE"); base != "" {
		DefaultBaseDirectoryPath = base
	} else {
		DefaultBaseDirectoryPath = os.ExpandEnv("$HOME/lib/vzfs")
	}
}

// C is the decoded configuration for one vzfs daemon instance.
type C struct {
	// ListenAddr is decoded from listen_addr. No command reads it:
	// cmd/vzfsnfs takes its address from -addr and cmd/vzfsmcp serves
	// over stdio.
	ListenAddr string `hcl:"listen_addr,optional"`

	// DefaultLockDurationMS is decoded from default_lock_duration_ms. No
	// command reads it; a command that omits durationMs gets
	// lockmgr.DefaultDuration.
	DefaultLockDurationMS int `hcl:"default_lock_duration_ms,optional"`

	// MountPoint is decoded from mount_point. cmd/vzfsmount does not read
	// it; the mount point is its command-line argument.
	MountPoint string `hcl:"mount_point,optional"`

	base string
}

// Load reads "config.hcl" from base, validating that it is not
// group/world readable before parsing it -- the same permission check
// the teacher's config.Load applies to its own config file.
func Load(base string) (*C, error) {
	filename := filepath.Join(base, "config.hcl")
	fi, err := os.Stat(filename)
	if err != nil {
		return nil, errorf("Load", "%w", err)
	}
	if fi.Mode()&0077 != 0 {
		return nil, errorf("Load", "%q: mode is %#o, want at most %#o",
			filename, fi.Mode()&0777, fi.Mode()&0700)
	}
	var c C
	if err := hclsimple.DecodeFile(filename, nil, &c); err != nil {
		return nil, errorf("Load", "%q: %w", filename, err)
	}
	c.base = base
	if c.MountPoint == "" {
		c.MountPoint = filepath.Join(base, "mnt")
	}
	log.WithField("base", base).Debug("config: loaded")
	return &c, nil
}

// DataDirectoryPath is where filesystem databases (one sqlite file per
// named filesystem, per internal/vzstore's DSNFor) live.
func (c *C) DataDirectoryPath() string {
	return filepath.Join(c.base, "data")
}

// Initialize writes a starter config.hcl at baseDir, refusing to
// overwrite an existing one.
func Initialize(baseDir string) error {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return errorf("Initialize", "%q: could not mkdir: %w", baseDir, err)
	}
	path := filepath.Join(baseDir, "config.hcl")
	if _, err := os.Stat(path); err == nil {
		return errorf("Initialize", "%q: already exists", path)
	} else if !os.IsNotExist(err) {
		return errorf("Initialize", "%q: could not determine if it exists: %w", path, err)
	}
	const starter = `listen_addr              = "127.0.0.1:5640"
default_lock_duration_ms = 5000
mount_point              = "/mnt/vzfs"
`
	if err := os.WriteFile(path, []byte(starter), 0600); err != nil {
		return errorf("Initialize", "%q: %w", path, err)
	}
	log.WithField("path", path).Debug("config: initialized")
	return nil
}
