package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/khushidubeyokok/AMD/internal/config"
	"github.com/khushidubeyokok/AMD/internal/content"
	"github.com/khushidubeyokok/AMD/internal/httpserver"
	"github.com/khushidubeyokok/AMD/internal/logger"
	"github.com/khushidubeyokok/AMD/internal/progress"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()

	var tracker progress.Tracker
	if cfg.SupabaseEnabled() {
		tracker, err = progress.NewSupabase(progress.SupabaseConfig{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceKey,
			Table:          cfg.SupabaseTable,
		})
		if err != nil {
			lg.Fatal("supabase tracker init failed", "err", err)
		}
		lg.Info("progress persisted to supabase", "table", cfg.SupabaseTable)
	} else {
		tracker = progress.NewMemory()
		lg.Warn("supabase not configured, progress is in-memory only")
	}

	manager := httpserver.NewManager(cfg, tracker, content.Catalog{}, lg)
	srv := httpserver.New(manager, tracker, lg)

	serverErrors := make(chan error, 1)
	go func() {
		lg.Info("server listening", "addr", cfg.HTTPAddress, "provider", cfg.VoiceProvider)
		serverErrors <- srv.Start(cfg.HTTPAddress)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server error", "err", err)
		}
	case sig := <-sigChan:
		lg.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Error("graceful shutdown failed", "err", err)
	}
}
