package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ohler55/ojg/oj"
	log "github.com/sirupsen/logrus"

	"github.com/dvanderweele/vzfs/internal/config"
	"github.com/dvanderweele/vzfs/internal/operator"
	"github.com/dvanderweele/vzfs/internal/wireproto"
)

// runServe is cmd/vzfsd's main loop, reused here so `vzfs serve` needs
// no separate process: one JSON object per stdin line in, one per
// stdout line out, until a close command or a signal.
func runServe(ctx context.Context, base string) error {
	cfg, err := config.Load(base)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDirectoryPath(), 0o700); err != nil {
		return err
	}

	actor := operator.New(cfg.DataDirectoryPath())
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("vzfs serve: signal received, shutting down")
		cancel()
	}()

	runDone := make(chan error, 1)
	go func() { runDone <- actor.Run(runCtx) }()

	serveStdio(runCtx, actor)

	cancel()
	return <-runDone
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
			log.WithError(err).Warn("vzfs serve: malformed request line")
			continue
		}
		cmd, err := wireproto.DecodeCommand(req)
		if err != nil {
			log.WithError(err).Warn("vzfs serve: could not decode command")
			continue
		}

		reply := actor.Send(ctx, cmd)
		encoded, err := oj.Marshal(wireproto.ReplyToWire(reply))
		if err != nil {
			log.WithError(err).Error("vzfs serve: could not encode reply")
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
