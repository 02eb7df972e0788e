package feeds

import (
	"context"
	"fmt"

	"github.com/archyards/archyards/internal/config"
	"github.com/archyards/archyards/internal/models"
)

// Fetcher retrieves and normalizes candidate articles from one feed source.
type Fetcher interface {
	// Fetch returns the normalized candidates for a source. Transport and
	// parse failures surface as *SourceError; the caller isolates them.
	Fetch(ctx context.Context, src config.Source) ([]models.Candidate, error)
	Name() string
}

// SourceError reports that a single source was unavailable for a run.
// It never escapes the per-source boundary: the orchestrator tallies it and
// continues with the remaining sources.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError wraps a fetch failure with its source name.
func NewSourceError(source string, err error) *SourceError {
	return &SourceError{Source: source, Err: err}
}
