package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hushtype/hushtype/config"
	"github.com/hushtype/hushtype/internal/app"
)

// Build information. Populated at build-time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hushtype %s (%s, built %s)\n", version, commit, date)
		return
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("starting hushtype", "version", version, "commit", commit)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config, using defaults", "error", err)
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	a, err := app.New(cfg)
	if err != nil {
		slog.Error("init", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("pipeline", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
