package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"breakout-systemv1/internal/sigengine"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg := sigengine.LoadConfig()
	log.Printf("[sigengine] mode=%s, TFs: %v, snapshot interval: %ds", cfg.Mode, cfg.EnabledTFs, cfg.SnapshotIntervalS)

	svc, err := sigengine.New(cfg)
	if err != nil {
		log.Fatalf("[sigengine] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[sigengine] fatal: %v", err)
	}
}
