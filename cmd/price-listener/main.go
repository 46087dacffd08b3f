package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"zilazol/internal"
	"zilazol/internal/config"
	"zilazol/internal/listener"
	"zilazol/internal/logger"
	"zilazol/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	logger.Init(cfg.LoggerOptions())

	chains, err := internal.LoadChainCatalog(cfg.ChainsFile)
	must(err)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()
	must(db.UpsertChains(chains.All()))

	svc := listener.NewService(db, cfg, chains)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.WithModule("listener").WithField("interval_sec", cfg.ListenerIntervalSec).Info("listener started")
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
