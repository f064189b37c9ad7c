package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	attendcmd "github.com/louisbranch/attend/internal/cmd/attend"
)

// main serves the MCP control surface and the notification scheduler.
func main() {
	cfg, err := attendcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[attend] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := attendcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
