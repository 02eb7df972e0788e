package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// Status tracks an article through the pipeline lifecycle.
type Status string

const (
	StatusRaw           Status = "raw"
	StatusRewritten     Status = "rewritten"
	StatusPublished     Status = "published"
	StatusRewriteFailed Status = "rewrite_failed"
)

// Badge marks how an article entered the published collection.
type Badge string

const (
	BadgeAggregated Badge = "aggregated"
	BadgePaid       Badge = "paid"
)

// Collection names one of the three article stores.
type Collection string

const (
	CollectionRaw       Collection = "raw"
	CollectionRewritten Collection = "rewritten"
	CollectionPublished Collection = "published"
)

// ValidCollection reports whether c names a known collection.
func ValidCollection(c Collection) bool {
	switch c {
	case CollectionRaw, CollectionRewritten, CollectionPublished:
		return true
	}
	return false
}

// Candidate is a normalized feed entry that has not yet been selected.
type Candidate struct {
	ID                  string    `json:"id"`
	SourceName          string    `json:"source_name"`
	SourceLogo          string    `json:"source_logo,omitempty"`
	URL                 string    `json:"url"`
	ImageURL            string    `json:"image_url,omitempty"`
	OriginalTitle       string    `json:"original_title"`
	OriginalDescription string    `json:"original_description"`
	PublishedAt         time.Time `json:"published_at"`
	Category            string    `json:"category"`
	Tags                []string  `json:"tags"`
	AgeHours            float64   `json:"age_hours"`
	CommentCount        int       `json:"comment_count"`
	SocialShares        int       `json:"social_shares"`
}

// CandidateID derives the stable article identifier from source name and URL.
// Re-fetching the same URL from the same source always yields the same ID.
func CandidateID(sourceName, url string) string {
	sum := md5.Sum([]byte(sourceName + ":" + url))
	return hex.EncodeToString(sum[:])[:12]
}

// ScoredCandidate is a Candidate with its per-run popularity score attached.
// Scores are recomputed every run and never persisted as meaningful signal.
type ScoredCandidate struct {
	Candidate
	PopularityScore float64 `json:"popularity_score"`
	Jitter          float64 `json:"jitter_component"`
}

// Article is a persisted, pipeline-tracked record.
type Article struct {
	ID                   string    `json:"id"`
	SourceName           string    `json:"source_name"`
	SourceLogo           string    `json:"source_logo,omitempty"`
	URL                  string    `json:"url"`
	ImageURL             string    `json:"image_url,omitempty"`
	OriginalTitle        string    `json:"original_title"`
	OriginalDescription  string    `json:"original_description"`
	RewrittenTitle       string    `json:"rewritten_title,omitempty"`
	RewrittenDescription string    `json:"rewritten_description,omitempty"`
	PublishedAt          time.Time `json:"published_at"`
	PublishedAtArchyards time.Time `json:"published_at_archyards,omitzero"`
	Category             string    `json:"category"`
	Tags                 []string  `json:"tags"`
	CommentCount         int       `json:"comment_count"`
	SocialShares         int       `json:"social_shares"`
	PopularityScore      float64   `json:"popularity_score"`
	Badge                Badge     `json:"badge,omitempty"`
	Status               Status    `json:"status"`
}

// NewArticle creates a raw-status Article from a selected candidate.
func NewArticle(sc ScoredCandidate) Article {
	return Article{
		ID:                  sc.ID,
		SourceName:          sc.SourceName,
		SourceLogo:          sc.SourceLogo,
		URL:                 sc.URL,
		ImageURL:            sc.ImageURL,
		OriginalTitle:       sc.OriginalTitle,
		OriginalDescription: sc.OriginalDescription,
		PublishedAt:         sc.PublishedAt,
		Category:            sc.Category,
		Tags:                sc.Tags,
		CommentCount:        sc.CommentCount,
		SocialShares:        sc.SocialShares,
		PopularityScore:     sc.PopularityScore,
		Status:              StatusRaw,
	}
}

// CanTransition reports whether an article may move from its current status
// to next. Published articles are terminal apart from full-record replacement.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusRaw:
		return next == StatusRewritten || next == StatusRewriteFailed
	case StatusRewritten:
		return next == StatusPublished
	case StatusRewriteFailed:
		// A later run that re-selects the same URL resets the record through
		// the raw merge, so another attempt is allowed.
		return next == StatusRewritten || next == StatusRewriteFailed
	default:
		return false
	}
}

// Transition applies a status change, rejecting invalid moves.
func (a *Article) Transition(next Status) error {
	if !a.Status.CanTransition(next) {
		return fmt.Errorf("invalid status transition %s -> %s for article %s", a.Status, next, a.ID)
	}
	a.Status = next
	return nil
}
