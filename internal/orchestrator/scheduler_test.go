package orchestrator

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/archyards/archyards/internal/config"
	"github.com/archyards/archyards/internal/models"
	"github.com/archyards/archyards/internal/ranker"
	"github.com/archyards/archyards/internal/store"
)

type countingFetcher struct {
	calls atomic.Int64
}

func (f *countingFetcher) Fetch(context.Context, config.Source) ([]models.Candidate, error) {
	f.calls.Add(1)
	return nil, nil
}

func (f *countingFetcher) Name() string { return "counting" }

func newSchedulerUnderTest(t *testing.T, fetcher *countingFetcher) *Scheduler {
	t.Helper()
	rnk := ranker.New(ranker.Config{}, rand.New(rand.NewSource(1)), testLogger())
	o := New(
		[]config.Source{{Name: "Dezeen", FeedURL: "https://www.dezeen.com/feed/"}},
		fetcher, rnk, &stubRewriter{}, store.NewMemoryStore(), nil,
		config.PipelineConfig{FetchTimeout: time.Second}, testLogger(),
	)

	s, err := NewScheduler(o, config.ScheduleConfig{RunAt: "07:00", Timezone: "UTC"}, testLogger())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return s
}

func TestSchedulerFiresOncePerDay(t *testing.T) {
	fetcher := &countingFetcher{}
	s := newSchedulerUnderTest(t, fetcher)

	clock := time.Date(2026, 8, 27, 6, 59, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	ctx := context.Background()

	s.tick(ctx)
	if got := fetcher.calls.Load(); got != 0 {
		t.Fatalf("fired before run time, %d fetches", got)
	}

	clock = time.Date(2026, 8, 27, 7, 0, 0, 0, time.UTC)
	s.tick(ctx)
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one run at 07:00, got %d fetches", got)
	}

	// Later ticks the same day must not fire again.
	clock = time.Date(2026, 8, 27, 7, 1, 0, 0, time.UTC)
	s.tick(ctx)
	clock = time.Date(2026, 8, 27, 18, 30, 0, 0, time.UTC)
	s.tick(ctx)
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("scheduler fired again within the same day, %d fetches", got)
	}

	// The next day it fires once more.
	clock = time.Date(2026, 8, 28, 7, 0, 0, 0, time.UTC)
	s.tick(ctx)
	if got := fetcher.calls.Load(); got != 2 {
		t.Fatalf("expected a second run the next day, got %d fetches", got)
	}
}

func TestSchedulerDoesNotCatchUpAfterRestart(t *testing.T) {
	fetcher := &countingFetcher{}
	s := newSchedulerUnderTest(t, fetcher)

	// First tick of a fresh scheduler lands well past the 07:00 run time,
	// as after a midday restart. It must wait for the next day's 07:00.
	clock := time.Date(2026, 8, 27, 13, 45, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	ctx := context.Background()

	s.tick(ctx)
	clock = time.Date(2026, 8, 27, 13, 46, 0, 0, time.UTC)
	s.tick(ctx)
	if got := fetcher.calls.Load(); got != 0 {
		t.Fatalf("scheduler ran a catch-up after restart, %d fetches", got)
	}

	clock = time.Date(2026, 8, 28, 7, 0, 0, 0, time.UTC)
	s.tick(ctx)
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("expected one run at the next 07:00, got %d fetches", got)
	}
}

func TestSchedulerHonorsTimezone(t *testing.T) {
	fetcher := &countingFetcher{}
	s := newSchedulerUnderTest(t, fetcher)

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	s.location = loc

	// 07:00 UTC is 03:00 in New York; must not fire yet.
	clock := time.Date(2026, 8, 27, 7, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	s.tick(context.Background())
	if got := fetcher.calls.Load(); got != 0 {
		t.Fatalf("fired before local run time, %d fetches", got)
	}

	// 11:00 UTC is 07:00 local during DST.
	clock = time.Date(2026, 8, 27, 11, 0, 0, 0, time.UTC)
	s.tick(context.Background())
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("expected one run at local 07:00, got %d fetches", got)
	}
}

func TestSchedulerRejectsBadRunAt(t *testing.T) {
	if _, err := NewScheduler(nil, config.ScheduleConfig{RunAt: "25:99", Timezone: "UTC"}, testLogger()); err == nil {
		t.Error("expected error for invalid run time")
	}
	if _, err := NewScheduler(nil, config.ScheduleConfig{RunAt: "07:00", Timezone: "Mars/Olympus"}, testLogger()); err == nil {
		t.Error("expected error for invalid timezone")
	}
}
