package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"herald/internal/platform/config"
	"herald/internal/platform/httpserver"
	"herald/internal/platform/logger"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	log.Info("starting herald",
		"store", app.storeKind,
		"cache_backend", cfg.Cache.Backend,
	)
	return httpserver.Run(ctx, httpserver.New(cfg.Server.Addr, app.router), log, 0)
}
