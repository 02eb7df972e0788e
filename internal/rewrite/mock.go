package rewrite

import (
	"context"
	"fmt"
	"strings"

	"github.com/archyards/archyards/internal/models"
)

// MockRewriter provides a rule-based Rewriter for tests and for running the
// pipeline without an API key.
type MockRewriter struct{}

// NewMockRewriter creates a mock rewriter.
func NewMockRewriter() *MockRewriter {
	return &MockRewriter{}
}

// Rewrite produces a deterministic editorial rendition without AI calls.
func (m *MockRewriter) Rewrite(ctx context.Context, article models.Article) (Result, error) {
	description := article.OriginalDescription
	if description == "" {
		description = article.OriginalTitle + "."
	}

	sentences := splitSentences(description)
	if len(sentences) > maxSentences {
		sentences = sentences[:maxSentences]
	}

	return Result{
		Title:       strings.TrimSpace(article.OriginalTitle),
		Description: fmt.Sprintf("Archyards takes note: %s", strings.Join(sentences, " ")),
	}, nil
}

func splitSentences(text string) []string {
	parts := sentenceEnd.Split(text, -1)
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasSuffix(p, ".") {
			p += "."
		}
		sentences = append(sentences, p)
	}
	return sentences
}
