package store

import (
	"context"
	"errors"
	"time"

	"github.com/archyards/archyards/internal/models"
)

// ErrStoreUnavailable marks persistence-layer failures. Unlike per-source and
// per-article errors these are fatal to a run: the orchestrator aborts rather
// than risk an inconsistent promotion.
var ErrStoreUnavailable = errors.New("collection store unavailable")

// ErrUnknownCollection reports a collection name outside raw/rewritten/published.
var ErrUnknownCollection = errors.New("unknown collection")

// Store persists the three article collections. The orchestrator is the sole
// writer; the query service only reads published.
//
// Merge is an idempotent upsert by id (last write wins, no duplicates) with
// all-or-nothing visibility: a concurrent reader sees either none or all of a
// batch. Read returns a collection's full current set, newest insertion
// first; published order is therefore promotion order, newest first — the
// store never re-sorts by score. Promote is the only path into published and
// only accepts articles whose rewritten-collection status is rewritten.
type Store interface {
	Merge(ctx context.Context, collection models.Collection, articles []models.Article) error
	Read(ctx context.Context, collection models.Collection) ([]models.Article, error)
	Promote(ctx context.Context, ids []string, badge models.Badge, publishedAt time.Time) (int, error)
	// Prune trims published to its newest max records (rolling window).
	Prune(ctx context.Context, max int) error
}
