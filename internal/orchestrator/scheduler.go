package orchestrator

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/archyards/archyards/internal/config"
	"github.com/archyards/archyards/internal/models"
)

// Scheduler fires one pipeline run per day at the configured wall-clock time.
// It checks once a minute and keeps a last-ran-day guard so a tick landing
// twice inside the same minute cannot double-trigger.
type Scheduler struct {
	orchestrator *Orchestrator
	runAt        int // minutes after midnight
	location     *time.Location
	interval     time.Duration
	logger       *slog.Logger
	now          func() time.Time

	lastRunDay string // YYYY-MM-DD in the configured zone
}

// NewScheduler builds a scheduler from validated schedule config.
func NewScheduler(o *Orchestrator, cfg config.ScheduleConfig, logger *slog.Logger) (*Scheduler, error) {
	runAt, err := config.ParseRunAt(cfg.RunAt)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		orchestrator: o,
		runAt:        runAt,
		location:     loc,
		interval:     time.Minute,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// Start blocks until ctx is cancelled, triggering a scheduled run when the
// local time matches the configured HH:MM for the first time that day.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started",
		"run_at_minutes", s.runAt,
		"timezone", s.location.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fires at most one run per configured day.
func (s *Scheduler) tick(ctx context.Context) {
	local := s.now().In(s.location)
	day := local.Format("2006-01-02")
	minutes := local.Hour()*60 + local.Minute()

	// Exact-minute match: a process started after the run time waits for
	// the next day rather than firing a late catch-up run.
	if minutes != s.runAt || day == s.lastRunDay {
		return
	}
	s.lastRunDay = day

	summary, err := s.orchestrator.Run(ctx, models.TriggerScheduled)
	if errors.Is(err, ErrRunInProgress) {
		s.logger.Warn("scheduled run skipped, another run active", "day", day)
		return
	}
	if err != nil {
		s.logger.Error("scheduled run failed",
			"day", day, "run_id", summary.RunID, "error", err)
		return
	}

	s.logger.Info("scheduled run finished",
		"day", day,
		"run_id", summary.RunID,
		"published", summary.Published)
}
