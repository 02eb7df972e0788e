package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/archyards/archyards/internal/models"
)

// PostgresStore implements Store on PostgreSQL. All three collections live in
// one table keyed (collection, id); a batch merge runs in a single
// transaction so readers observe it all-or-nothing.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const articleColumns = `collection, id, source_name, source_logo, url, image_url,
	original_title, original_description, rewritten_title, rewritten_description,
	published_at, published_at_archyards, category, tags,
	comment_count, social_shares, popularity_score, badge, status`

// Merge idempotently upserts a batch by id inside one transaction. The
// position column is assigned on first insert only, preserving insertion
// order across re-merges.
func (s *PostgresStore) Merge(ctx context.Context, collection models.Collection, articles []models.Article) error {
	if !models.ValidCollection(collection) {
		return ErrUnknownCollection
	}
	if len(articles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin merge: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO articles (` + articleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (collection, id) DO UPDATE SET
			source_name = EXCLUDED.source_name,
			source_logo = EXCLUDED.source_logo,
			url = EXCLUDED.url,
			image_url = EXCLUDED.image_url,
			original_title = EXCLUDED.original_title,
			original_description = EXCLUDED.original_description,
			rewritten_title = EXCLUDED.rewritten_title,
			rewritten_description = EXCLUDED.rewritten_description,
			published_at = EXCLUDED.published_at,
			published_at_archyards = EXCLUDED.published_at_archyards,
			category = EXCLUDED.category,
			tags = EXCLUDED.tags,
			comment_count = EXCLUDED.comment_count,
			social_shares = EXCLUDED.social_shares,
			popularity_score = EXCLUDED.popularity_score,
			badge = EXCLUDED.badge,
			status = EXCLUDED.status
	`

	for _, a := range articles {
		tagsJSON, err := json.Marshal(a.Tags)
		if err != nil {
			return fmt.Errorf("failed to marshal tags for %s: %w", a.ID, err)
		}

		_, err = tx.ExecContext(ctx, query,
			string(collection),
			a.ID,
			a.SourceName,
			a.SourceLogo,
			a.URL,
			nullString(a.ImageURL),
			a.OriginalTitle,
			a.OriginalDescription,
			nullString(a.RewrittenTitle),
			nullString(a.RewrittenDescription),
			a.PublishedAt,
			nullTime(a.PublishedAtArchyards),
			a.Category,
			tagsJSON,
			a.CommentCount,
			a.SocialShares,
			a.PopularityScore,
			nullString(string(a.Badge)),
			string(a.Status),
		)
		if err != nil {
			return fmt.Errorf("%w: merge %s into %s: %v", ErrStoreUnavailable, a.ID, collection, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit merge: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Read returns a collection's full current set, newest insertion first.
func (s *PostgresStore) Read(ctx context.Context, collection models.Collection) ([]models.Article, error) {
	if !models.ValidCollection(collection) {
		return nil, ErrUnknownCollection
	}

	query := `SELECT ` + articleColumns + ` FROM articles WHERE collection = $1 ORDER BY position DESC`

	rows, err := s.db.QueryContext(ctx, query, string(collection))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStoreUnavailable, collection, err)
	}
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStoreUnavailable, collection, err)
	}
	return articles, nil
}

// Promote copies rewritten-status articles into published in one
// transaction, stamping badge and publish time. Re-promoting an id replaces
// the published record wholesale, matching Merge's last-write-wins. Fresh
// inserts get new positions so published reads back in promotion order,
// newest first.
func (s *PostgresStore) Promote(ctx context.Context, ids []string, badge models.Badge, publishedAt time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin promote: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO articles (` + articleColumns + `)
		SELECT 'published', id, source_name, source_logo, url, image_url,
		       original_title, original_description, rewritten_title, rewritten_description,
		       published_at, $2, category, tags,
		       comment_count, social_shares, popularity_score, $3, 'published'
		FROM articles
		WHERE collection = 'rewritten' AND status = 'rewritten' AND id = ANY($1)
		ON CONFLICT (collection, id) DO UPDATE SET
			source_name = EXCLUDED.source_name,
			source_logo = EXCLUDED.source_logo,
			url = EXCLUDED.url,
			image_url = EXCLUDED.image_url,
			original_title = EXCLUDED.original_title,
			original_description = EXCLUDED.original_description,
			rewritten_title = EXCLUDED.rewritten_title,
			rewritten_description = EXCLUDED.rewritten_description,
			published_at = EXCLUDED.published_at,
			published_at_archyards = EXCLUDED.published_at_archyards,
			category = EXCLUDED.category,
			tags = EXCLUDED.tags,
			comment_count = EXCLUDED.comment_count,
			social_shares = EXCLUDED.social_shares,
			popularity_score = EXCLUDED.popularity_score,
			badge = EXCLUDED.badge,
			status = EXCLUDED.status
	`

	result, err := tx.ExecContext(ctx, query, pq.Array(ids), publishedAt, string(badge))
	if err != nil {
		return 0, fmt.Errorf("%w: promote: %v", ErrStoreUnavailable, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: promote rows affected: %v", ErrStoreUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit promote: %v", ErrStoreUnavailable, err)
	}
	return int(affected), nil
}

// Prune keeps the newest max published records.
func (s *PostgresStore) Prune(ctx context.Context, max int) error {
	if max <= 0 {
		return nil
	}

	query := `
		DELETE FROM articles
		WHERE collection = 'published' AND position NOT IN (
			SELECT position FROM articles
			WHERE collection = 'published'
			ORDER BY position DESC
			LIMIT $1
		)
	`

	if _, err := s.db.ExecContext(ctx, query, max); err != nil {
		return fmt.Errorf("%w: prune published: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func scanArticle(rows *sql.Rows) (models.Article, error) {
	var (
		a                    models.Article
		collection           string
		imageURL             sql.NullString
		rewrittenTitle       sql.NullString
		rewrittenDescription sql.NullString
		publishedAtArchyards sql.NullTime
		badge                sql.NullString
		tagsJSON             []byte
	)

	err := rows.Scan(
		&collection,
		&a.ID,
		&a.SourceName,
		&a.SourceLogo,
		&a.URL,
		&imageURL,
		&a.OriginalTitle,
		&a.OriginalDescription,
		&rewrittenTitle,
		&rewrittenDescription,
		&a.PublishedAt,
		&publishedAtArchyards,
		&a.Category,
		&tagsJSON,
		&a.CommentCount,
		&a.SocialShares,
		&a.PopularityScore,
		&badge,
		&a.Status,
	)
	if err != nil {
		return models.Article{}, fmt.Errorf("%w: scan article: %v", ErrStoreUnavailable, err)
	}

	a.ImageURL = imageURL.String
	a.RewrittenTitle = rewrittenTitle.String
	a.RewrittenDescription = rewrittenDescription.String
	if publishedAtArchyards.Valid {
		a.PublishedAtArchyards = publishedAtArchyards.Time
	}
	a.Badge = models.Badge(badge.String)

	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &a.Tags); err != nil {
			return models.Article{}, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	return a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
