package api

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/archyards/archyards/internal/auth"
	"github.com/archyards/archyards/internal/config"
	"github.com/archyards/archyards/internal/metrics"
	"github.com/archyards/archyards/internal/orchestrator"
	"github.com/archyards/archyards/internal/store"
)

// SetupRoutes configures all API routes. Article queries are public; the
// pipeline controls require a valid admin token.
func SetupRoutes(
	mux *http.ServeMux,
	st store.Store,
	o *orchestrator.Orchestrator,
	sources []config.Source,
	location *time.Location,
	health func() error,
	collector *metrics.Collector,
	authConfig auth.Config,
	logger *slog.Logger,
) {
	handler := NewHandler(st, sources, location, health, logger)
	pipelineHandler := NewPipelineHandler(o, logger)
	authHandler := NewAuthHandler(authConfig, logger)

	authMiddleware := auth.Middleware(authConfig)

	// Authentication routes (public)
	mux.HandleFunc("/api/auth/login", authHandler.Login)

	// Article routes (public)
	mux.HandleFunc("/api/articles", handler.GetArticlesHandler)
	mux.HandleFunc("/api/articles/today", handler.GetTodayHandler)
	mux.HandleFunc("/api/articles/", handler.GetArticleByIDHandler)
	mux.HandleFunc("/api/sources", handler.GetSourcesHandler)
	mux.HandleFunc("/api/health", handler.GetHealthHandler)

	// Pipeline routes (admin only)
	mux.HandleFunc("/api/pipeline/run", func(w http.ResponseWriter, r *http.Request) {
		authMiddleware(http.HandlerFunc(pipelineHandler.TriggerRunHandler)).ServeHTTP(w, r)
	})
	mux.HandleFunc("/api/pipeline/status", func(w http.ResponseWriter, r *http.Request) {
		authMiddleware(http.HandlerFunc(pipelineHandler.StatusHandler)).ServeHTTP(w, r)
	})

	if collector != nil {
		mux.Handle("/metrics", collector.Handler())
	}
}
