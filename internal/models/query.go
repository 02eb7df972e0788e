package models

import "time"

const (
	// DefaultQueryLimit is the page size when the caller does not ask for one.
	DefaultQueryLimit = 20
	// MaxQueryLimit is the silent upper bound on requested page sizes.
	MaxQueryLimit = 100
)

// ArticleQuery holds filters for listing published articles. All filters are
// optional and combine with AND semantics.
type ArticleQuery struct {
	Category string
	Badge    Badge
	Source   string
	Today    bool
	Limit    int
	Offset   int
}

// Normalize applies defaults and clamps. Over-large or non-positive limits
// never error; they fall back to documented defaults.
func (q *ArticleQuery) Normalize() {
	if q.Limit <= 0 {
		q.Limit = DefaultQueryLimit
	}
	if q.Limit > MaxQueryLimit {
		q.Limit = MaxQueryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

// TriggerKind records what started a pipeline run.
type TriggerKind string

const (
	TriggerScheduled TriggerKind = "scheduled"
	TriggerManual    TriggerKind = "manual"
)

// RunState is the orchestrator state machine position for a run.
type RunState string

const (
	RunIdle       RunState = "idle"
	RunFetching   RunState = "fetching"
	RunRanking    RunState = "ranking"
	RunRewriting  RunState = "rewriting"
	RunPublishing RunState = "publishing"
	RunDone       RunState = "done"
)

// RunSummary is the record the orchestrator emits when a run reaches Done.
// Per-source and per-article failures are tallied here rather than failing
// the run; only store failures set Err.
type RunSummary struct {
	RunID           string         `json:"run_id"`
	Trigger         TriggerKind    `json:"trigger"`
	State           RunState       `json:"state"`
	StartedAt       time.Time      `json:"started_at"`
	Duration        time.Duration  `json:"duration_ns"`
	FetchedBySource map[string]int `json:"fetched_by_source"`
	SourceFailures  int            `json:"source_failures"`
	Selected        int            `json:"selected"`
	Rewritten       int            `json:"rewritten"`
	RewriteFailures int            `json:"rewrite_failures"`
	Published       int            `json:"published"`
	Err             string         `json:"error,omitempty"`
}
