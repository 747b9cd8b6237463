// Command vzfsd runs the Operator (O) as a long-lived actor, speaking
// the actor protocol (§6) as JSON-lines over stdin/stdout: one request
// object per line in, one reply object per line out. This is the
// canonical embeddable front-end spec.md describes -- a host process
// drives VZFS by writing commands to this process's stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ohler55/ojg/oj"
	log "github.com/sirupsen/logrus"

	"github.com/dvanderweele/vzfs/internal/config"
	"github.com/dvanderweele/vzfs/internal/operator"
	"github.com/dvanderweele/vzfs/internal/wireproto"
)

func main() {
	base := flag.String("base", config.DefaultBaseDirectoryPath, "base directory holding config.hcl and filesystem databases")
	flag.Parse()

	cfg, err := config.Load(*base)
	if err != nil {
		log.WithError(err).Fatal("vzfsd: loading config")
	}
	if err := os.MkdirAll(cfg.DataDirectoryPath(), 0o700); err != nil {
		log.WithError(err).Fatal("vzfsd: creating data directory")
	}

	actor := operator.New(cfg.DataDirectoryPath())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("vzfsd: signal received, shutting down")
		cancel()
	}()

	runDone := make(chan error, 1)
	go func() { runDone <- actor.Run(ctx) }()

	serveStdio(ctx, actor)

	cancel()
	<-runDone
}

func serveStdio(ctx context.Context, actor *operator.Actor) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req map[string]interface{}
		if err := oj.Unmarshal(append([]byte(nil), line...), &req); err != nil {
			log.WithError(err).Warn("vzfsd: malformed request line")
			continue
		}
		cmd, err := wireproto.DecodeCommand(req)
		if err != nil {
			log.WithError(err).Warn("vzfsd: could not decode command")
			continue
		}

		reply := actor.Send(ctx, cmd)
		encoded, err := oj.Marshal(wireproto.ReplyToWire(reply))
		if err != nil {
			log.WithError(err).Error("vzfsd: could not encode reply")
			continue
		}
		out.Write(encoded)
		out.WriteByte('\n')
		out.Flush()

		if cmd.Kind == operator.Close {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}
