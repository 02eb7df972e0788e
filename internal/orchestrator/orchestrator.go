package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/archyards/archyards/internal/config"
	"github.com/archyards/archyards/internal/feeds"
	"github.com/archyards/archyards/internal/metrics"
	"github.com/archyards/archyards/internal/models"
	"github.com/archyards/archyards/internal/ranker"
	"github.com/archyards/archyards/internal/rewrite"
	"github.com/archyards/archyards/internal/store"
)

// ErrRunInProgress rejects a trigger while another run is active. Triggers
// are never queued.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Orchestrator drives one pipeline run end to end: fetch, rank, rewrite,
// publish. It is the sole writer to the collection store. At most one run is
// active at a time.
type Orchestrator struct {
	sources  []config.Source
	fetcher  feeds.Fetcher
	ranker   *ranker.Ranker
	rewriter rewrite.Rewriter
	store    store.Store
	metrics  *metrics.Collector
	logger   *slog.Logger
	cfg      config.PipelineConfig
	now      func() time.Time

	mu          sync.Mutex
	running     bool
	lastSummary *models.RunSummary
}

// New creates an orchestrator. The metrics collector may be nil.
func New(
	sources []config.Source,
	fetcher feeds.Fetcher,
	rnk *ranker.Ranker,
	rewriter rewrite.Rewriter,
	st store.Store,
	collector *metrics.Collector,
	cfg config.PipelineConfig,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 3
	}
	if cfg.RewriteConcurrency <= 0 {
		cfg.RewriteConcurrency = 2
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.MaxPublished <= 0 {
		cfg.MaxPublished = 150
	}
	return &Orchestrator{
		sources:  sources,
		fetcher:  fetcher,
		ranker:   rnk,
		rewriter: rewriter,
		store:    st,
		metrics:  collector,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run executes one pipeline run synchronously. A second invocation while a
// run is active fails immediately with ErrRunInProgress and mutates nothing.
func (o *Orchestrator) Run(ctx context.Context, trigger models.TriggerKind) (models.RunSummary, error) {
	if !o.tryBegin() {
		return models.RunSummary{}, ErrRunInProgress
	}
	defer o.end()

	return o.execute(ctx, trigger, uuid.NewString())
}

// TriggerAsync reserves the single-run guard and executes the run in the
// background, returning its run id. Used by the on-demand HTTP trigger; the
// run outlives the request.
func (o *Orchestrator) TriggerAsync(trigger models.TriggerKind) (string, error) {
	if !o.tryBegin() {
		return "", ErrRunInProgress
	}

	runID := uuid.NewString()
	go func() {
		defer o.end()
		o.execute(context.Background(), trigger, runID)
	}()
	return runID, nil
}

// IsRunning reports whether a run is currently active.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// LastSummary returns the most recent run summary, if any run completed.
func (o *Orchestrator) LastSummary() (models.RunSummary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastSummary == nil {
		return models.RunSummary{}, false
	}
	return *o.lastSummary, true
}

func (o *Orchestrator) tryBegin() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return false
	}
	o.running = true
	return true
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

func (o *Orchestrator) record(summary models.RunSummary) {
	o.mu.Lock()
	o.lastSummary = &summary
	o.mu.Unlock()
}

// execute walks the run state machine. Per-source and per-article failures
// are tallied and the run continues; only store failures abort, leaving the
// published collection untouched.
func (o *Orchestrator) execute(ctx context.Context, trigger models.TriggerKind, runID string) (models.RunSummary, error) {
	start := o.now()
	summary := models.RunSummary{
		RunID:           runID,
		Trigger:         trigger,
		State:           models.RunFetching,
		StartedAt:       start,
		FetchedBySource: make(map[string]int),
	}

	o.logger.Info("pipeline run starting",
		"run_id", runID,
		"trigger", trigger,
		"sources", len(o.sources))

	candidates := o.fetchAll(ctx, &summary)

	summary.State = models.RunRanking
	selected := o.ranker.Select(candidates)
	summary.Selected = len(selected)
	o.observeStage("selected", len(selected))

	articles := make([]models.Article, 0, len(selected))
	for _, sc := range selected {
		articles = append(articles, models.NewArticle(sc))
	}

	if err := o.store.Merge(ctx, models.CollectionRaw, articles); err != nil {
		return o.abort(summary, start, err)
	}

	summary.State = models.RunRewriting
	rewritten, failed := o.rewriteAll(ctx, articles)
	summary.Rewritten = len(rewritten)
	summary.RewriteFailures = len(failed)
	o.observeStage("rewritten", len(rewritten))
	o.observeStage("rewrite_failed", len(failed))

	summary.State = models.RunPublishing

	// Record terminal per-run failures on the raw copies so a later run can
	// see and overwrite them.
	if len(failed) > 0 {
		if err := o.store.Merge(ctx, models.CollectionRaw, failed); err != nil {
			return o.abort(summary, start, err)
		}
	}

	if len(rewritten) > 0 {
		if err := o.store.Merge(ctx, models.CollectionRewritten, rewritten); err != nil {
			return o.abort(summary, start, err)
		}

		ids := make([]string, 0, len(rewritten))
		for _, a := range rewritten {
			ids = append(ids, a.ID)
		}

		published, err := o.store.Promote(ctx, ids, models.BadgeAggregated, o.now())
		if err != nil {
			return o.abort(summary, start, err)
		}
		summary.Published = published
		o.observeStage("published", published)

		if err := o.store.Prune(ctx, o.cfg.MaxPublished); err != nil {
			return o.abort(summary, start, err)
		}
	}

	summary.State = models.RunDone
	summary.Duration = o.now().Sub(start)
	o.record(summary)

	if o.metrics != nil {
		o.metrics.ObserveRun(string(trigger), "ok", summary.Duration)
	}

	o.logger.Info("pipeline run complete",
		"run_id", runID,
		"selected", summary.Selected,
		"rewritten", summary.Rewritten,
		"rewrite_failures", summary.RewriteFailures,
		"source_failures", summary.SourceFailures,
		"published", summary.Published,
		"duration", summary.Duration)

	return summary, nil
}

// abort finalizes a run killed by a store failure. Nothing is promoted.
func (o *Orchestrator) abort(summary models.RunSummary, start time.Time, err error) (models.RunSummary, error) {
	summary.State = models.RunDone
	summary.Err = err.Error()
	summary.Duration = o.now().Sub(start)
	o.record(summary)

	if o.metrics != nil {
		o.metrics.ObserveRun(string(summary.Trigger), "store_error", summary.Duration)
	}

	o.logger.Error("pipeline run aborted",
		"run_id", summary.RunID,
		"state", summary.State,
		"error", err)

	return summary, err
}

// fetchAll fans out across sources with bounded parallelism. Each fetch is
// individually time-boxed; a failing source contributes zero candidates and
// a tallied failure, never an error.
func (o *Orchestrator) fetchAll(ctx context.Context, summary *models.RunSummary) []models.Candidate {
	var (
		mu         sync.Mutex
		candidates []models.Candidate
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.FetchConcurrency)

	for _, src := range o.sources {
		src := src
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, o.cfg.FetchTimeout)
			defer cancel()

			fetched, err := o.fetcher.Fetch(fetchCtx, src)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				summary.SourceFailures++
				summary.FetchedBySource[src.Name] = 0
				if o.metrics != nil {
					o.metrics.ObserveFetch(src.Name, 0, true)
				}
				o.logger.Warn("source unavailable, continuing",
					"source", src.Name, "error", err)
				return nil
			}

			summary.FetchedBySource[src.Name] = len(fetched)
			candidates = append(candidates, fetched...)
			if o.metrics != nil {
				o.metrics.ObserveFetch(src.Name, len(fetched), false)
			}
			return nil
		})
	}

	g.Wait()
	return candidates
}

// rewriteAll fans the selected articles out to the rewrite engine with
// bounded parallelism. Failures are isolated per article.
func (o *Orchestrator) rewriteAll(ctx context.Context, articles []models.Article) (rewritten, failed []models.Article) {
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.RewriteConcurrency)

	for _, article := range articles {
		article := article
		g.Go(func() error {
			result, err := o.rewriter.Rewrite(gctx, article)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				article.Status = models.StatusRewriteFailed
				failed = append(failed, article)
				o.logger.Warn("rewrite failed, continuing",
					"article_id", article.ID,
					"source", article.SourceName,
					"error", err)
				return nil
			}

			article.RewrittenTitle = result.Title
			article.RewrittenDescription = result.Description
			article.Status = models.StatusRewritten
			rewritten = append(rewritten, article)
			return nil
		})
	}

	g.Wait()
	return rewritten, failed
}

func (o *Orchestrator) observeStage(stage string, n int) {
	if o.metrics != nil && n > 0 {
		o.metrics.ObserveStage(stage, n)
	}
}
