package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/rubani/internal/config"
	"github.com/jkaninda/rubani/internal/observability"
	"github.com/jkaninda/rubani/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTokenRepo struct {
	deleted int64
	err     error
	calls   int
	lastNow time.Time
}

func (f *fakeTokenRepo) Create(ctx context.Context, token *storage.LoginToken) error { return nil }

func (f *fakeTokenRepo) Redeem(ctx context.Context, id uuid.UUID, now time.Time) (*storage.LoginToken, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.calls++
	f.lastNow = now
	return f.deleted, f.err
}

func TestNewRejectsBadSchedule(t *testing.T) {
	cfg := &config.SchedulerConfig{Enabled: true, SweepCron: "not a cron expression"}
	if _, err := New(&fakeTokenRepo{}, cfg, nil, discardLogger()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestNewDefaultsSchedule(t *testing.T) {
	// A nil config falls back to the every-ten-minutes default.
	s, err := New(&fakeTokenRepo{}, nil, nil, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	base := time.Date(2025, 1, 1, 12, 3, 0, 0, time.UTC)
	next := s.schedule.Next(base)
	if want := time.Date(2025, 1, 1, 12, 10, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("next run = %v, want %v", next, want)
	}
}

func TestSweepDeletesAndRecords(t *testing.T) {
	repo := &fakeTokenRepo{deleted: 4}
	m := observability.NewMetricsCollector()

	s, err := New(repo, &config.SchedulerConfig{Enabled: true}, m, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fixed := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.sweep(context.Background())

	if repo.calls != 1 {
		t.Fatalf("DeleteExpired calls = %d, want 1", repo.calls)
	}
	if !repo.lastNow.Equal(fixed) {
		t.Errorf("sweep cutoff = %v, want %v", repo.lastNow, fixed)
	}
}

func TestSweepSurvivesStoreError(t *testing.T) {
	repo := &fakeTokenRepo{err: errors.New("database locked")}

	s, err := New(repo, &config.SchedulerConfig{Enabled: true}, nil, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Must not panic; the error is logged and the loop continues.
	s.sweep(context.Background())
	s.sweep(context.Background())

	if repo.calls != 2 {
		t.Errorf("DeleteExpired calls = %d, want 2", repo.calls)
	}
}

func TestStartStops(t *testing.T) {
	s, err := New(&fakeTokenRepo{}, nil, nil, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	stop := s.Start(context.Background())
	stop()
}
