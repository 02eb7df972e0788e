package rewrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"log/slog"

	"github.com/archyards/archyards/internal/config"
	"github.com/archyards/archyards/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

const maxSentences = 5

// ErrConstraintViolated reports output that breaks an editorial hard
// constraint even after retries.
var ErrConstraintViolated = errors.New("rewrite violates editorial constraints")

// Result is the rewritten title and description for one article. The engine
// never touches the article's url or id.
type Result struct {
	Title       string `json:"rewritten_title"`
	Description string `json:"rewritten_description"`
}

// Rewriter transforms an article's title and description into the Archyards
// editorial voice.
type Rewriter interface {
	Rewrite(ctx context.Context, article models.Article) (Result, error)
}

// chatClient is the slice of the OpenAI client the engine uses; tests
// substitute a stub.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Engine implements Rewriter over the OpenAI chat completion API with
// per-call timeouts, bounded retries, and output validation.
type Engine struct {
	client      chatClient
	model       string
	temperature float32
	maxTokens   int
	callTimeout time.Duration
	policy      RetryPolicy
	logger      *slog.Logger
}

// NewEngine creates a rewrite engine from configuration.
func NewEngine(cfg config.RewriteConfig, logger *slog.Logger) *Engine {
	policy := DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries

	return &Engine{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		callTimeout: cfg.CallTimeout,
		policy:      policy,
		logger:      logger,
	}
}

// Rewrite runs one article through the text-generation capability. Transient
// failures and constraint violations are retried up to the configured bound;
// exhaustion surfaces as an error and the caller marks the article
// rewrite_failed without aborting the run.
func (e *Engine) Rewrite(ctx context.Context, article models.Article) (Result, error) {
	prompt := buildPrompt(article.SourceName, article.OriginalTitle, article.OriginalDescription)

	var result Result
	err := Retry(ctx, e.policy, func() error {
		var attemptErr error
		result, attemptErr = e.attempt(ctx, prompt)
		return attemptErr
	})
	if err != nil {
		return Result{}, fmt.Errorf("rewrite %s: %w", article.ID, err)
	}

	e.logger.Info("article rewritten",
		"article_id", article.ID,
		"source", article.SourceName,
		"title", result.Title)

	return result, nil
}

func (e *Engine) attempt(ctx context.Context, prompt string) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		if isTransient(err) {
			return Result{}, NewRetryableError(err)
		}
		return Result{}, err
	}

	if len(resp.Choices) == 0 {
		return Result{}, NewRetryableError(fmt.Errorf("empty completion response"))
	}

	result, err := parseResult(resp.Choices[0].Message.Content)
	if err != nil {
		// A malformed payload is usually a one-off generation slip.
		return Result{}, NewRetryableError(err)
	}

	if err := validate(result); err != nil {
		// Constraint violations get the same retry budget; if they persist
		// the article is marked rewrite_failed.
		return Result{}, NewRetryableError(err)
	}

	return result, nil
}

// parseResult decodes the model output, tolerating markdown code fences.
func parseResult(raw string) (Result, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.LastIndex(raw, "```"); idx >= 0 {
			raw = raw[:idx]
		}
		raw = strings.TrimSpace(raw)
	}

	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return Result{}, fmt.Errorf("malformed rewrite payload: %w", err)
	}
	return result, nil
}

func validate(result Result) error {
	if strings.TrimSpace(result.Title) == "" {
		return fmt.Errorf("%w: empty title", ErrConstraintViolated)
	}
	if strings.TrimSpace(result.Description) == "" {
		return fmt.Errorf("%w: empty description", ErrConstraintViolated)
	}
	if n := CountSentences(result.Description); n > maxSentences {
		return fmt.Errorf("%w: description has %d sentences (max %d)", ErrConstraintViolated, n, maxSentences)
	}
	return nil
}

var sentenceEnd = regexp.MustCompile(`[.!?]+(\s+|$)`)

// CountSentences counts sentence terminators followed by whitespace or end
// of text. Good enough for the five-sentence editorial cap.
func CountSentences(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	n := len(sentenceEnd.FindAllString(text, -1))
	if n == 0 {
		// No terminator at all still reads as one sentence.
		return 1
	}
	// Trailing text after the last terminator counts as a sentence too.
	if loc := sentenceEnd.FindAllStringIndex(text, -1); len(loc) > 0 {
		last := loc[len(loc)-1]
		if strings.TrimSpace(text[last[1]:]) != "" {
			n++
		}
	}
	return n
}

// isTransient reports whether an API failure is worth retrying: timeouts,
// rate limits, and server-side errors.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "Too Many Requests") ||
		strings.Contains(msg, "Rate limit") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused")
}
