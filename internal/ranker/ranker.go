package ranker

import (
	"math/rand"
	"sort"
	"time"

	"log/slog"

	"github.com/archyards/archyards/internal/models"
)

const (
	maxFreshnessPoints = 100.0
	commentWeight      = 2.0
	shareWeight        = 0.5
	maxJitter          = 5.0
)

// Config controls scoring and selection for a run.
type Config struct {
	// TargetCount is N, the number of articles selected per run.
	TargetCount int
	// PerSourceCap is K, the diversity cap per source.
	PerSourceCap int
	// FreshnessHorizon is the age at which the freshness component decays
	// to zero.
	FreshnessHorizon time.Duration
}

// Ranker scores candidates by a composite popularity signal and selects a
// bounded, source-diverse subset.
type Ranker struct {
	cfg    Config
	rng    *rand.Rand
	logger *slog.Logger
}

// New creates a Ranker. A nil rng gets a time-seeded one; tests inject a
// fixed seed to make jitter reproducible.
func New(cfg Config, rng *rand.Rand, logger *slog.Logger) *Ranker {
	if cfg.TargetCount <= 0 {
		cfg.TargetCount = 5
	}
	if cfg.PerSourceCap <= 0 {
		cfg.PerSourceCap = 2
	}
	if cfg.FreshnessHorizon <= 0 {
		cfg.FreshnessHorizon = 100 * time.Hour
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Ranker{cfg: cfg, rng: rng, logger: logger}
}

// Score computes the per-run popularity score for one candidate:
// freshness + 2*comments + 0.5*shares + jitter in [0, 5). Jitter exists only
// to break near-ties and is recomputed every run.
func (r *Ranker) Score(c models.Candidate) models.ScoredCandidate {
	jitter := r.rng.Float64() * maxJitter
	return models.ScoredCandidate{
		Candidate: c,
		PopularityScore: r.freshness(c.AgeHours) +
			commentWeight*float64(c.CommentCount) +
			shareWeight*float64(c.SocialShares) +
			jitter,
		Jitter: jitter,
	}
}

// freshness decays linearly from maxFreshnessPoints at age zero to zero at
// the configured horizon.
func (r *Ranker) freshness(ageHours float64) float64 {
	horizon := r.cfg.FreshnessHorizon.Hours()
	points := maxFreshnessPoints * (1 - ageHours/horizon)
	if points < 0 {
		return 0
	}
	if points > maxFreshnessPoints {
		return maxFreshnessPoints
	}
	return points
}

// Select scores the merged candidate pool and greedily picks the top
// TargetCount items in descending score order, skipping candidates whose
// source has already hit PerSourceCap. Fewer than TargetCount selections is
// valid when the pool is small.
func (r *Ranker) Select(candidates []models.Candidate) []models.ScoredCandidate {
	scored := make([]models.ScoredCandidate, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		scored = append(scored, r.Score(c))
	}

	// Ties broken by id so selection is deterministic under a fixed seed.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].PopularityScore != scored[j].PopularityScore {
			return scored[i].PopularityScore > scored[j].PopularityScore
		}
		return scored[i].ID < scored[j].ID
	})

	selected := make([]models.ScoredCandidate, 0, r.cfg.TargetCount)
	perSource := make(map[string]int)

	for _, sc := range scored {
		if len(selected) == r.cfg.TargetCount {
			break
		}
		if perSource[sc.SourceName] >= r.cfg.PerSourceCap {
			continue
		}
		perSource[sc.SourceName]++
		selected = append(selected, sc)
	}

	if r.logger != nil {
		r.logger.Info("selection complete",
			"pool", len(scored),
			"selected", len(selected),
			"target", r.cfg.TargetCount,
			"per_source_cap", r.cfg.PerSourceCap)
	}

	return selected
}
