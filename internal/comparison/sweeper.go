package comparison

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
)

// DefaultSweepSchedule runs the sweep every ten minutes.
const DefaultSweepSchedule = "@every 10m"

// Sweeper periodically evicts expired sessions from a SessionStore.
type Sweeper struct {
	cron     *cron.Cron
	store    SessionStore
	schedule string
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewSweeper creates a sweeper. metrics may be nil.
func NewSweeper(store SessionStore, schedule string, logger *observability.Logger, metrics *observability.Metrics) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Sweeper{
		cron:     cron.New(),
		store:    store,
		schedule: schedule,
		logger:   logger.WithOperation("session_sweep"),
		metrics:  metrics,
		now:      time.Now,
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Session sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule session sweep %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info().Str("schedule", s.schedule).Msg("Session sweeper started")
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Session sweeper stopped")
}

// RunOnce sweeps immediately.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	removed, err := s.store.Sweep(ctx, s.now())
	s.metrics.AddSessionsSwept(removed)
	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("Swept expired sessions")
	}
	return removed, err
}
