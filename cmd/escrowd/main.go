package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"daoescrow/config"
	"daoescrow/core/events"
	"daoescrow/gateway"
	"daoescrow/gateway/middleware"
	"daoescrow/native/escrow"
	"daoescrow/observability/logging"
	"daoescrow/state"
	"daoescrow/storage"
)

func main() {
	configPath := flag.String("config", "escrowd.toml", "path to the TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := logging.Setup("escrowd", cfg.Environment)

	var db storage.Database
	if cfg.DataDir == "" {
		logger.Warn("no DataDir configured, state is ephemeral")
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "escrow"))
		if err != nil {
			logger.Error("open leveldb", slog.String("error", err.Error()))
			os.Exit(1)
		}
		db = ldb
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("close database", slog.String("error", err.Error()))
		}
	}()

	store := state.New(db, cfg.Tokens)
	ledger, err := escrow.NewLedger(cfg.ArbiterAddress(), cfg.FeeBasisPoints)
	if err != nil {
		logger.Error("construct ledger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	ledger.SetState(store)

	// Restore the identifier counter so ids are never reused across restarts.
	seed, err := store.SeedNextID()
	if err != nil {
		logger.Error("seed escrow counter", slog.String("error", err.Error()))
		os.Exit(1)
	}
	ledger.SetNextID(seed)

	ring := events.NewRing(cfg.FactsRetained)
	ledger.SetEmitter(events.Fanout{
		ring,
		events.Func(func(evt events.Event) {
			logger.Info("fact", slog.String("type", evt.EventType()))
		}),
	})

	auth, err := gateway.NewAuthenticator(cfg.APITokens)
	if err != nil {
		logger.Error("configure authenticator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "escrowd",
		LogRequests: cfg.LogRequests,
	}, logger)
	server := gateway.NewServer(ledger, auth, ring, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(obs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.ListenAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-shutdown
	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown", slog.String("error", err.Error()))
	}
}
