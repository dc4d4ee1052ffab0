// Package scheduler runs the background sweep that removes expired login
// tokens from storage. Expired tokens are already rejected at redeem time;
// the sweeper keeps the table from growing without bound.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jkaninda/rubani/internal/config"
	"github.com/jkaninda/rubani/internal/observability"
	"github.com/jkaninda/rubani/internal/storage"
)

// Sweeper periodically deletes expired login tokens.
type Sweeper struct {
	tokens   storage.LoginTokenRepository
	schedule cron.Schedule
	metrics  *observability.MetricsCollector
	logger   *slog.Logger

	now func() time.Time
}

// New creates a Sweeper from the scheduler config. Returns an error when
// the sweep cron expression does not parse.
func New(tokens storage.LoginTokenRepository, cfg *config.SchedulerConfig, metrics *observability.MetricsCollector, logger *slog.Logger) (*Sweeper, error) {
	expr := cfg.SweepSchedule()
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing sweep schedule %q: %w", expr, err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		tokens:   tokens,
		schedule: schedule,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "scheduler")),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start begins the sweep loop. Returns a cancel function that stops it.
func (s *Sweeper) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		s.logger.InfoContext(ctx, "login token sweeper started")

		for {
			next := s.schedule.Next(s.now())
			timer := time.NewTimer(next.Sub(s.now()))

			select {
			case <-ctx.Done():
				timer.Stop()
				s.logger.Info("login token sweeper stopped")
				return
			case <-timer.C:
				s.sweep(ctx)
			}
		}
	}()

	return cancel
}

// sweep runs a single pass, deleting tokens that expired before now.
func (s *Sweeper) sweep(ctx context.Context) {
	now := s.now()

	deleted, err := s.tokens.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "login token sweep failed",
			slog.String("error", err.Error()),
		)
		return
	}

	if s.metrics != nil {
		s.metrics.TokenSweepsTotal.Inc()
		s.metrics.TokensSweptTotal.Add(float64(deleted))
	}

	if deleted > 0 {
		s.logger.InfoContext(ctx, "swept expired login tokens",
			slog.Int64("deleted", deleted),
		)
	}
}
