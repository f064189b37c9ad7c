package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	rebuildcmd "github.com/louisbranch/attend/internal/cmd/rebuild"
)

// main replays the event journal into the projection store.
func main() {
	cfg, err := rebuildcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[rebuild] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rebuildcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to rebuild: %v", err)
	}
}
