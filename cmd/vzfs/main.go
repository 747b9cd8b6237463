// Command vzfs is the single CLI entry point tying VZFS's embeddable
// front-ends together: "serve" runs the stdin/stdout actor protocol
// in-process, "list"/"drop"/"export"/"import" drive the actor directly
// for one-shot lifecycle operations, and "mount"/"nfs"/"mcp" hand off
// to the dedicated vzfsmount/vzfsnfs/vzfsmcp binaries the way `git`
// hands off to `git-<subcommand>` helpers, since each of those fronts
// needs its own process boundary (a FUSE mount's lifetime is the
// mount's lifetime, not the CLI invocation's).
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dvanderweele/vzfs/internal/config"
	"github.com/dvanderweele/vzfs/internal/operator"
)

var baseDir string

func main() {
	root := &cobra.Command{
		Use:   "vzfs",
		Short: "drive a VZFS filesystem: serve the actor protocol, mount it, or manage its lifecycle",
	}
	root.PersistentFlags().StringVar(&baseDir, "base", config.DefaultBaseDirectoryPath, "base directory holding config.hcl and filesystem databases")

	root.AddCommand(
		initCmd(),
		serveCmd(),
		helperCmd("mount", "vzfsmount"),
		helperCmd("nfs", "vzfsnfs"),
		helperCmd("mcp", "vzfsmcp"),
		listCmd(),
		dropCmd(),
		exportCmd(),
		importCmd(),
	)

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("vzfs")
	}
}

// initCmd writes a starter config.hcl at --base, the same special
// casing the teacher's own `muscle init` gets: every other subcommand
// loads config.hcl and fails if it's missing, so creating it can't go
// through the same path.
func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "write a starter config.hcl at the base directory",
		RunE: func(_ *cobra.Command, _ []string) error {
			return config.Initialize(baseDir)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the actor protocol as JSON-lines over stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), baseDir)
		},
	}
}

// helperCmd builds a thin wrapper subcommand that execs the named
// sibling binary, passing --base through plus every flag/arg the user
// gave this subcommand.
func helperCmd(use, binary string) *cobra.Command {
	c := &cobra.Command{
		Use:                use,
		Short:              fmt.Sprintf("run %s (see `%s --help`)", binary, binary),
		DisableFlagParsing: true,
		RunE: func(_ *cobra.Command, args []string) error {
			path, err := exec.LookPath(binary)
			if err != nil {
				return fmt.Errorf("%s not found on PATH: %w", binary, err)
			}
			fullArgs := append([]string{"--base", baseDir}, args...)
			child := exec.Command(path, fullArgs...)
			child.Stdin, child.Stdout, child.Stderr = os.Stdin, os.Stdout, os.Stderr
			return child.Run()
		},
	}
	return c
}

func withActor(ctx context.Context, fn func(*operator.Actor) error) error {
	cfg, err := config.Load(baseDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDirectoryPath(), 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	actor := operator.New(cfg.DataDirectoryPath())
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- actor.Run(runCtx) }()
	err = fn(actor)
	cancel()
	<-done
	return err
}
