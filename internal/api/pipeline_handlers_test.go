package api

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/archyards/archyards/internal/auth"
	"github.com/archyards/archyards/internal/config"
	"github.com/archyards/archyards/internal/models"
	"github.com/archyards/archyards/internal/orchestrator"
	"github.com/archyards/archyards/internal/ranker"
	"github.com/archyards/archyards/internal/rewrite"
	"github.com/archyards/archyards/internal/store"
)

// gateFetcher parks every fetch until released, keeping a triggered run
// active for as long as a test needs it.
type gateFetcher struct {
	gate chan struct{}
}

func (f *gateFetcher) Fetch(ctx context.Context, _ config.Source) ([]models.Candidate, error) {
	select {
	case <-f.gate:
	case <-ctx.Done():
	}
	return nil, nil
}

func (f *gateFetcher) Name() string { return "gate" }

func newTestRouter(t *testing.T, fetcher *gateFetcher) (*http.ServeMux, string) {
	t.Helper()

	sources := []config.Source{{Name: "Dezeen", FeedURL: "https://www.dezeen.com/feed/"}}
	rnk := ranker.New(ranker.Config{}, rand.New(rand.NewSource(7)), testLogger())
	o := orchestrator.New(
		sources, fetcher, rnk, rewrite.NewMockRewriter(), store.NewMemoryStore(), nil,
		config.PipelineConfig{FetchTimeout: 5 * time.Second}, testLogger(),
	)

	authConfig := auth.Config{
		JWTSecret:     "test-secret",
		AdminPassword: "swordfish",
		TokenDuration: time.Hour,
	}

	mux := http.NewServeMux()
	SetupRoutes(mux, store.NewMemoryStore(), o, sources, time.UTC, nil, nil, authConfig, testLogger())

	token, err := auth.GenerateToken("admin", authConfig.JWTSecret, authConfig.TokenDuration)
	if err != nil {
		t.Fatal(err)
	}
	return mux, token
}

func TestPipelineRunRequiresAuth(t *testing.T) {
	mux, _ := newTestRouter(t, &gateFetcher{gate: make(chan struct{})})

	req := httptest.NewRequest(http.MethodPost, "/api/pipeline/run", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without a token", rr.Code)
	}
}

func TestPipelineRunTriggerAndConflict(t *testing.T) {
	gate := make(chan struct{})
	mux, token := newTestRouter(t, &gateFetcher{gate: gate})
	defer close(gate)

	req := httptest.NewRequest(http.MethodPost, "/api/pipeline/run", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("first trigger status = %d, want 202", rr.Code)
	}
	var accepted map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &accepted); err != nil {
		t.Fatal(err)
	}
	if accepted["run_id"] == "" {
		t.Error("202 response missing run_id")
	}

	// The first run is parked in the fetcher; a second trigger conflicts.
	req = httptest.NewRequest(http.MethodPost, "/api/pipeline/run", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Errorf("second trigger status = %d, want 409", rr.Code)
	}
}

func TestPipelineStatus(t *testing.T) {
	gate := make(chan struct{})
	close(gate) // runs complete immediately
	mux, token := newTestRouter(t, &gateFetcher{gate: gate})

	req := httptest.NewRequest(http.MethodGet, "/api/pipeline/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status endpoint returned %d", rr.Code)
	}
	var resp StatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Running {
		t.Error("no run should be active")
	}
	if resp.LastSummary != nil {
		t.Error("no summary expected before any run")
	}
}

func TestLoginFlow(t *testing.T) {
	mux, _ := newTestRouter(t, &gateFetcher{gate: make(chan struct{})})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"password":"swordfish"}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d", rr.Code)
	}
	var resp LoginResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token == "" {
		t.Error("login response missing token")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"password":"wrong"}`))
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", rr.Code)
	}
}
