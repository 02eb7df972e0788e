package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/archyards/archyards/internal/config"
	"github.com/archyards/archyards/internal/models"
	"github.com/archyards/archyards/internal/store"
)

// Handler serves the public article query endpoints.
type Handler struct {
	store    store.Store
	sources  []config.Source
	location *time.Location
	health   func() error
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler creates a handler over the published collection. health may be
// nil when no database backs the store.
func NewHandler(st store.Store, sources []config.Source, location *time.Location, health func() error, logger *slog.Logger) *Handler {
	if location == nil {
		location = time.UTC
	}
	return &Handler{
		store:    st,
		sources:  sources,
		location: location,
		health:   health,
		logger:   logger,
		now:      time.Now,
	}
}

// ArticlesResponse is the paginated envelope for article listings.
type ArticlesResponse struct {
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
	Articles []models.Article `json:"articles"`
}

// GetArticlesHandler handles GET /api/articles with optional category, badge,
// source and today filters. Malformed filter values are treated as absent;
// listing queries never fail on input.
func (h *Handler) GetArticlesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := parseQuery(r)
	h.respondWithArticles(w, r, query)
}

// GetTodayHandler handles GET /api/articles/today, a fixed view of the
// articles published on the current day in the configured timezone.
func (h *Handler) GetTodayHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := parseQuery(r)
	query.Today = true
	h.respondWithArticles(w, r, query)
}

// GetArticleByIDHandler handles GET /api/articles/{id}.
func (h *Handler) GetArticleByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/articles/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	articles, err := h.store.Read(r.Context(), models.CollectionPublished)
	if err != nil {
		h.logger.Error("failed to read published collection", "error", err)
		http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
		return
	}

	for _, a := range articles {
		if a.ID == id {
			writeJSON(w, http.StatusOK, a, h.logger)
			return
		}
	}

	http.Error(w, "Article not found", http.StatusNotFound)
}

// SourceSummary is one entry in the GET /api/sources response.
type SourceSummary struct {
	Name           string `json:"name"`
	Category       string `json:"category"`
	Logo           string `json:"logo,omitempty"`
	PublishedCount int    `json:"published_count"`
}

// GetSourcesHandler handles GET /api/sources: the configured sources with
// their live published-article counts.
func (h *Handler) GetSourcesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	articles, err := h.store.Read(r.Context(), models.CollectionPublished)
	if err != nil {
		h.logger.Error("failed to read published collection", "error", err)
		http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
		return
	}

	counts := make(map[string]int)
	for _, a := range articles {
		counts[a.SourceName]++
	}

	summaries := make([]SourceSummary, 0, len(h.sources))
	for _, src := range h.sources {
		summaries = append(summaries, SourceSummary{
			Name:           src.Name,
			Category:       src.Category,
			Logo:           src.Logo,
			PublishedCount: counts[src.Name],
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"sources": summaries}, h.logger)
}

// HealthResponse is the GET /api/health body.
type HealthResponse struct {
	Status        string `json:"status"`
	Time          string `json:"time"`
	Published     int    `json:"published_count"`
	LastPublished string `json:"last_published_at,omitempty"`
}

// GetHealthHandler handles GET /api/health.
func (h *Handler) GetHealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Time:   h.now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if h.health != nil {
		if err := h.health(); err != nil {
			h.logger.Error("health check failed", "error", err)
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	if articles, err := h.store.Read(r.Context(), models.CollectionPublished); err == nil {
		resp.Published = len(articles)
		if len(articles) > 0 && !articles[0].PublishedAtArchyards.IsZero() {
			resp.LastPublished = articles[0].PublishedAtArchyards.UTC().Format(time.RFC3339)
		}
	}

	writeJSON(w, code, resp, h.logger)
}

func (h *Handler) respondWithArticles(w http.ResponseWriter, r *http.Request, query models.ArticleQuery) {
	query.Normalize()

	articles, err := h.store.Read(r.Context(), models.CollectionPublished)
	if err != nil {
		h.logger.Error("failed to read published collection", "error", err)
		http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
		return
	}

	filtered := h.filter(articles, query)
	total := len(filtered)

	start := query.Offset
	if start > total {
		start = total
	}
	end := start + query.Limit
	if end > total {
		end = total
	}
	page := filtered[start:end]
	if page == nil {
		page = []models.Article{}
	}

	writeJSON(w, http.StatusOK, ArticlesResponse{
		Total:    total,
		Limit:    query.Limit,
		Offset:   query.Offset,
		Articles: page,
	}, h.logger)
}

// filter applies the query filters with AND semantics, preserving the
// newest-first order the store returns.
func (h *Handler) filter(articles []models.Article, query models.ArticleQuery) []models.Article {
	var today string
	if query.Today {
		today = h.now().In(h.location).Format("2006-01-02")
	}

	out := make([]models.Article, 0, len(articles))
	for _, a := range articles {
		if query.Category != "" && a.Category != query.Category {
			continue
		}
		if query.Badge != "" && a.Badge != query.Badge {
			continue
		}
		if query.Source != "" && !strings.EqualFold(a.SourceName, query.Source) {
			continue
		}
		if query.Today {
			if a.PublishedAtArchyards.IsZero() ||
				a.PublishedAtArchyards.In(h.location).Format("2006-01-02") != today {
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

// parseQuery reads listing filters from the URL. Unparseable numbers and
// unknown badge values fall back to defaults rather than erroring.
func parseQuery(r *http.Request) models.ArticleQuery {
	q := r.URL.Query()

	query := models.ArticleQuery{
		Category: q.Get("category"),
		Source:   q.Get("source"),
	}

	switch badge := models.Badge(strings.ToLower(q.Get("badge"))); badge {
	case models.BadgeAggregated, models.BadgePaid:
		query.Badge = badge
	}

	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			query.Limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			query.Offset = n
		}
	}

	return query
}

func writeJSON(w http.ResponseWriter, code int, payload any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
