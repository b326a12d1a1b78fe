// Package ratelimit tracks the remote API quota and decides when a run must
// pause and checkpoint instead of risking exhaustion mid-traversal.
package ratelimit

import (
	"context"
	"time"

	"repogauge/internal/models"
	"repogauge/pkg/logger"
)

// DefaultMaxWait caps a blocking wait for quota reset. The true reset window
// can be longer; capping keeps the process observably alive.
const DefaultMaxWait = time.Hour

// StatusFunc fetches the current quota from the remote API.
type StatusFunc func(ctx context.Context) (models.RateStatus, error)

// Tracker consults the remote quota and applies the pause threshold.
type Tracker struct {
	status    StatusFunc
	threshold int
	maxWait   time.Duration
	log       *logger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Tracker. threshold is the remaining-call count at or below
// which a run should checkpoint and stop.
func New(status StatusFunc, threshold int, maxWait time.Duration, log *logger.Logger) *Tracker {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Tracker{
		status:    status,
		threshold: threshold,
		maxWait:   maxWait,
		log:       log,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Budget fetches the remaining quota, limit and reset time.
func (t *Tracker) Budget(ctx context.Context) (models.RateStatus, error) {
	return t.status(ctx)
}

// ShouldPause reports whether the remaining quota is at or below the
// checkpoint threshold.
func (t *Tracker) ShouldPause(remaining int) bool {
	return remaining <= t.threshold
}

// Threshold returns the configured pause threshold.
func (t *Tracker) Threshold() int {
	return t.threshold
}

// MaxWait returns the cap applied to blocking reset waits.
func (t *Tracker) MaxWait() time.Duration {
	return t.maxWait
}

// WaitForReset blocks until the quota reset time, the wait cap, or context
// cancellation, whichever comes first. It returns the duration actually
// waited.
func (t *Tracker) WaitForReset(ctx context.Context, resetAt time.Time) (time.Duration, error) {
	wait := resetAt.Sub(t.now())
	if wait <= 0 {
		return 0, nil
	}
	if wait > t.maxWait {
		if t.log != nil {
			t.log.Warn().
				Dur("reset_in", wait).
				Dur("capped_to", t.maxWait).
				Msg("rate limit reset window exceeds wait cap")
		}
		wait = t.maxWait
	}

	if t.log != nil {
		t.log.Info().Dur("wait", wait).Time("reset_at", resetAt).Msg("waiting for rate limit reset")
	}

	if err := t.sleep(ctx, wait); err != nil {
		return 0, err
	}
	return wait, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
