// Package main provides the agentbrain knowledge server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentbrain/agentbrain/internal/config"
	"github.com/agentbrain/agentbrain/internal/db"
	"github.com/agentbrain/agentbrain/internal/metrics"
	"github.com/agentbrain/agentbrain/internal/provider"
	"github.com/agentbrain/agentbrain/internal/server"
	"github.com/agentbrain/agentbrain/internal/service"
	"github.com/agentbrain/agentbrain/internal/source"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("starting agentbrain-server", "port", cfg.ServerPort)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		cancel()
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Error("failed to close database connection", "error", err)
		}
	}()

	if err := store.InitSchema(ctx, cfg.EmbeddingDim); err != nil {
		cancel()
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	if *wipeDB || os.Getenv("AGENTBRAIN_WIPE_DB") == "true" {
		if err := store.WipeData(ctx); err != nil {
			cancel()
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}
	cancel()

	llm, err := provider.NewClient(provider.Config{
		Backend:         cfg.ProviderBackend,
		BaseURL:         cfg.ProviderBaseURL,
		OllamaHost:      cfg.OllamaHost,
		APIKeys:         cfg.ProviderAPIKeys,
		EmbeddingModel:  cfg.EmbeddingModel,
		GenerationModel: cfg.GenerationModel,
		EmbeddingDim:    cfg.EmbeddingDim,
	}, logger)
	if err != nil {
		logger.Error("failed to create provider client", "error", err)
		os.Exit(1)
	}

	stats := metrics.NewCollector()
	llm.SetMetrics(stats)

	var transcriber source.Transcriber
	if cfg.TranscriberURL != "" {
		transcriber = source.NewHTTPTranscriber(cfg.TranscriberURL, nil)
		logger.Info("transcription service configured", "url", cfg.TranscriberURL)
	}
	acquirer := source.NewAcquirer(&http.Client{Timeout: 30 * time.Second}, transcriber, logger)

	jobs := service.NewJobManager(store, logger)
	trainer := service.NewTrainer(store, jobs, llm, acquirer, logger)
	retriever := service.NewRetriever(store, llm, logger)
	retriever.SetMetrics(stats)
	answerer := service.NewAnswerer(store, retriever, llm, logger)

	srv := server.New(cfg.ServerPort, &server.Handlers{
		Trainer:   trainer,
		Jobs:      jobs,
		Answerer:  answerer,
		Agents:    store,
		Retrieval: retriever,
		Stats:     stats,
		Logger:    logger,
	}, logger)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(runCtx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
