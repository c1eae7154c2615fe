// Package main provides the saved-session maintenance command.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/fireside-rpg/fireside/internal/platform/config"
	"github.com/fireside-rpg/fireside/internal/tools/snapshots"
)

func main() {
	cfg, err := snapshots.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := snapshots.Run(ctx, cfg, os.Stdout); err != nil {
		config.Exitf("snapshots: %v", err)
	}
}
