package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/callweave/callweave/internal/config"
	"github.com/callweave/callweave/internal/gdrive"
	"github.com/callweave/callweave/internal/llm"
	"github.com/callweave/callweave/internal/relay"
	"github.com/callweave/callweave/internal/server"
	"github.com/callweave/callweave/internal/session"
	"github.com/callweave/callweave/internal/storage"
	"github.com/callweave/callweave/internal/summary"
	"github.com/callweave/callweave/internal/tools"
	"github.com/callweave/callweave/internal/transport"
)

func main() {
	log.Println("callweave: starting")

	configPath := flag.String("config", envOrDefault(config.EnvPrefix+"CONFIG", "config.yaml"), "path to config file")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	logger := slog.Default()

	toolRegistry := tools.NewRegistry(logger)
	if err := tools.RegisterBuiltins(toolRegistry, store); err != nil {
		log.Fatalf("tool registration failed: %v", err)
	}

	notifier := summary.New(cfg.Summarization, store, func(provider, model string) (llm.Client, error) {
		return llm.NewClient(provider, cfg.APIKeyFor(provider), model,
			llm.WithMaxTokens(cfg.Summarization.MaxTokens))
	}, logger)

	coordinator := relay.New(relay.Config{
		EngineAPIKey:   cfg.OpenAIAPIKey,
		EngineModel:    cfg.EngineModel,
		Voice:          cfg.Voice,
		Instructions:   cfg.Instructions,
		CommitInterval: cfg.ParsedCommitInterval(),
	}, session.NewRegistry(), store, toolRegistry, toolRegistry.Schemas(), notifier, relay.NewRealtimeDialer())

	mux := http.NewServeMux()
	transport.RegisterRoute(mux, coordinator)
	server.RegisterAPIRoutes(mux, store, server.StatusHooks{
		ActiveCalls: coordinator.Registry().Len,
		Warnings:    func() []string { return warnings },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	if cfg.GDriveFolderID != "" {
		syncer, syncErr := gdrive.NewSyncer(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if syncErr != nil {
			log.Printf("warning: gdrive sync disabled: %v", syncErr)
		} else {
			go runDigestSync(ctx, syncer, store)
		}
	}

	log.Printf("callweave: listening on %s", cfg.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("callweave: shutting down")
	cancel()

	coordinator.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}

func runDigestSync(ctx context.Context, syncer *gdrive.Syncer, store *storage.SQLiteStore) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			date := time.Now().UTC().Format("2006-01-02")
			calls, err := store.GetCallsByDate(date)
			if err != nil {
				log.Printf("gdrive digest query error: %v", err)
				continue
			}
			if len(calls) == 0 {
				continue
			}
			if err := syncer.SyncDigest(date, gdrive.BuildDigest(date, calls)); err != nil {
				log.Printf("gdrive sync error: %v", err)
			}
		}
	}
}

func envOrDefault(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
