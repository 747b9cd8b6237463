// Command vzfsmcp exposes a VZFS filesystem as a small set of MCP
// tools (read_file, write_file, list_directory, make_directory,
// remove), backed by the Operator -- a third embeddable front-end
// alongside vzfsd's JSON-lines protocol and vzfsmount's FUSE mount,
// matching spec.md's framing of VZFS as a subsystem a host process
// drives rather than a standalone server with its own users.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"

	"github.com/dvanderweele/vzfs/internal/config"
	"github.com/dvanderweele/vzfs/internal/operator"
)

func main() {
	base := flag.String("base", config.DefaultBaseDirectoryPath, "base directory holding config.hcl and filesystem databases")
	fsName := flag.String("fs", "default", "filesystem name to open (created and seeded if missing)")
	flag.Parse()

	cfg, err := config.Load(*base)
	if err != nil {
		log.WithError(err).Fatal("vzfsmcp: loading config")
	}
	if err := os.MkdirAll(cfg.DataDirectoryPath(), 0o700); err != nil {
		log.WithError(err).Fatal("vzfsmcp: creating data directory")
	}

	actor := operator.New(cfg.DataDirectoryPath())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = actor.Run(ctx) }()

	initReply := actor.Send(ctx, operator.Command{
		Kind: operator.Init,
		Init: operator.InitPayload{FilesystemName: *fsName, Version: 1},
	})
	if initReply.Err != nil {
		log.WithError(initReply.Err).Fatal("vzfsmcp: init")
	}

	mcpServer := server.NewMCPServer("vzfs", "0.1.0")
	registerTools(mcpServer, actor, ctx)

	if err := server.ServeStdio(mcpServer); err != nil {
		log.WithError(err).Fatal("vzfsmcp: serve")
	}
}
