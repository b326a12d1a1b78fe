package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"repogauge/internal/models"
)

func staticStatus(remaining int) StatusFunc {
	return func(ctx context.Context) (models.RateStatus, error) {
		return models.RateStatus{Remaining: remaining, Limit: 5000, ResetAt: time.Now().Add(time.Hour)}, nil
	}
}

func TestShouldPause(t *testing.T) {
	tracker := New(staticStatus(100), 100, 0, nil)

	tests := []struct {
		remaining int
		pause     bool
	}{
		{101, false},
		{100, true}, // at threshold pauses
		{50, true},
		{0, true},
	}

	for _, tt := range tests {
		if got := tracker.ShouldPause(tt.remaining); got != tt.pause {
			t.Errorf("ShouldPause(%d) = %v, want %v", tt.remaining, got, tt.pause)
		}
	}
}

func TestBudgetPassesThroughStatus(t *testing.T) {
	tracker := New(staticStatus(4321), 100, 0, nil)

	status, err := tracker.Budget(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Remaining != 4321 || status.Limit != 5000 {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestBudgetPropagatesErrors(t *testing.T) {
	wantErr := errors.New("boom")
	tracker := New(func(ctx context.Context) (models.RateStatus, error) {
		return models.RateStatus{}, wantErr
	}, 100, 0, nil)

	if _, err := tracker.Budget(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("expected underlying error, got %v", err)
	}
}

func TestWaitForResetCapsAtMaxWait(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	tracker := New(staticStatus(1), 0, 10*time.Minute, nil)
	tracker.now = func() time.Time { return now }

	var slept time.Duration
	tracker.sleep = func(ctx context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	// Reset is 3 hours out; the wait must be capped at 10 minutes.
	waited, err := tracker.WaitForReset(context.Background(), now.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if waited != 10*time.Minute || slept != 10*time.Minute {
		t.Errorf("expected capped 10m wait, waited %v slept %v", waited, slept)
	}
}

func TestWaitForResetPastResetReturnsImmediately(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	tracker := New(staticStatus(1), 0, time.Hour, nil)
	tracker.now = func() time.Time { return now }
	tracker.sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatal("sleep should not be called for a past reset time")
		return nil
	}

	waited, err := tracker.WaitForReset(context.Background(), now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if waited != 0 {
		t.Errorf("expected zero wait, got %v", waited)
	}
}

func TestWaitForResetHonorsContext(t *testing.T) {
	tracker := New(staticStatus(1), 0, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tracker.WaitForReset(ctx, time.Now().Add(time.Minute))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
