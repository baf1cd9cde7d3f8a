package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mitchellwinn/pioneer-online-sub002/internal/config"
	"github.com/mitchellwinn/pioneer-online-sub002/internal/handlers"
	"github.com/mitchellwinn/pioneer-online-sub002/internal/logger"
	"github.com/mitchellwinn/pioneer-online-sub002/internal/services/events"
	"github.com/mitchellwinn/pioneer-online-sub002/internal/session"
	"github.com/mitchellwinn/pioneer-online-sub002/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Pioneer Dialogue API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"data_dir", cfg.DataDir,
		"baseline_lang", cfg.BaselineLang)

	pacing, err := config.LoadPacing(cfg.PacingFile)
	if err != nil {
		log.Error("Failed to load pacing settings", "error", err, "path", cfg.PacingFile)
		os.Exit(1)
	}

	store := storage.NewRedisStorage(cfg.RedisURL, cfg.SessionTTL, log)
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()

	if err := store.WaitForConnection(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}

	library, err := storage.LoadLibrary(cfg.DataDir, cfg.BaselineLang, log)
	if err != nil {
		log.Error("Failed to load dialogue library", "error", err)
		os.Exit(1)
	}

	broadcaster := events.NewBroadcaster(store.Client(), log)

	manager := session.NewManager(session.Config{
		Library:      library,
		Store:        store,
		Broadcaster:  broadcaster,
		Logger:       log,
		TickInterval: cfg.TickInterval,
		Pacing:       pacing,
	})

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(store, library, log)
	mux.Handle("/health", healthHandler)

	conversationHandler := handlers.NewConversationHandler(manager, store, cfg.DefaultLang, log)
	mux.Handle("/v1/conversations", conversationHandler)
	mux.Handle("/v1/conversations/", conversationHandler)

	documentsHandler := handlers.NewDocumentsHandler(library, log)
	mux.Handle("/v1/documents", documentsHandler)
	mux.Handle("/v1/documents/", documentsHandler)

	flagsHandler := handlers.NewFlagsHandler(store, log)
	mux.Handle("/v1/flags/", flagsHandler)

	eventsHandler := handlers.NewEventsHandler(store.Client(), log)
	mux.Handle("/v1/events/", eventsHandler)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays unset so SSE streams are not cut off
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	// Wind down running conversations before the transport
	manager.Close()

	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}
