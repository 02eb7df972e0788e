package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/archyards/archyards/internal/api"
	"github.com/archyards/archyards/internal/auth"
	"github.com/archyards/archyards/internal/config"
	"github.com/archyards/archyards/internal/database"
	"github.com/archyards/archyards/internal/feeds"
	"github.com/archyards/archyards/internal/logging"
	"github.com/archyards/archyards/internal/metrics"
	"github.com/archyards/archyards/internal/orchestrator"
	"github.com/archyards/archyards/internal/ranker"
	"github.com/archyards/archyards/internal/rewrite"
	"github.com/archyards/archyards/internal/server"
	"github.com/archyards/archyards/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting archyards")

	sources, err := config.LoadSources(cfg.Pipeline.SourcesFile)
	if err != nil {
		logger.Error("failed to load sources", "error", err)
		os.Exit(1)
	}
	logger.Info("sources loaded", "count", len(sources))

	// Storage: Postgres when DATABASE_URL is set, in-memory otherwise.
	var (
		articleStore store.Store
		health       func() error
	)
	if cfg.Database.URL != "" {
		logger.Info("connecting to database")
		db, err := database.Connect(context.Background(), cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := database.EnsureSchema(context.Background(), db); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		logger.Info("database connected")

		articleStore = store.NewPostgresStore(db)
		health = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return database.HealthCheck(ctx, db)
		}
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store; articles will not survive restarts")
		articleStore = store.NewMemoryStore()
	}

	// Rewriter: real engine when an API key is present, mock otherwise.
	var rewriter rewrite.Rewriter
	if cfg.Rewrite.APIKey != "" {
		logger.Info("using OpenAI rewrite engine", "model", cfg.Rewrite.Model)
		rewriter = rewrite.NewEngine(cfg.Rewrite, logger)
	} else {
		logger.Warn("OPENAI_API_KEY not set, using mock rewriter")
		rewriter = rewrite.NewMockRewriter()
	}

	fetcher := feeds.NewRSSFetcher(cfg.Pipeline.FetchTimeout, cfg.Pipeline.MaxEntriesPerFeed, logger)

	rnk := ranker.New(ranker.Config{
		TargetCount:      cfg.Pipeline.TargetCount,
		PerSourceCap:     cfg.Pipeline.PerSourceCap,
		FreshnessHorizon: cfg.Pipeline.FreshnessHorizon,
	}, rand.New(rand.NewSource(time.Now().UnixNano())), logger)

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	pipeline := orchestrator.New(sources, fetcher, rnk, rewriter, articleStore, collector, cfg.Pipeline, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler, err := orchestrator.NewScheduler(pipeline, cfg.Schedule, logger)
	if err != nil {
		logger.Error("failed to init scheduler", "error", err)
		os.Exit(1)
	}
	go scheduler.Start(ctx)

	authConfig := auth.LoadConfigFromEnv()
	logger.Info("auth configured", "jwt_secret_set", authConfig.JWTSecret != "change-this-secret")

	location, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		logger.Error("failed to load timezone", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	api.SetupRoutes(mux, articleStore, pipeline, sources, location, health, collector, authConfig, logger)

	srv := server.New(cfg.Server, logger, collector.InstrumentHandler(mux))

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("archyards started", "port", cfg.Server.Port, "run_at", cfg.Schedule.RunAt, "timezone", cfg.Schedule.Timezone)

	waitForSignal(logger)

	cancel()
	logger.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
