package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"AvitoMonitor/internal/app"
	"AvitoMonitor/internal/config"
	"AvitoMonitor/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "run a single polling tick and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application setup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	run := application.Run
	if *once {
		run = application.RunOnce
	}

	if err := run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		application.Close()
		os.Exit(1)
	}
}
