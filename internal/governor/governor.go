// Package governor keeps the engine from firing more often than its cadence
// allows and spaces out provider calls inside a run.
package governor

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"kasbon/internal/reminder"
)

// DefaultTolerance is the window around the computed trigger inside which a
// poll counts as "on time".
const DefaultTolerance = 5 * time.Minute

// MinInterval is one cadence period minus an hour of slack for poll drift.
// Monthly uses the shortest month so February does not swallow March's slot.
func MinInterval(f reminder.Frequency) time.Duration {
	switch f {
	case reminder.FrequencyDaily:
		return 23 * time.Hour
	case reminder.FrequencyWeekly:
		return 167 * time.Hour
	case reminder.FrequencyBiweekly:
		return 335 * time.Hour
	case reminder.FrequencyMonthly:
		return 28*24*time.Hour - time.Hour
	default:
		return 23 * time.Hour
	}
}

// ShouldFire reports whether the engine is due at now.
//
// The gate is global: one LastFiredAt covers every debtor. Once the minimum
// interval has elapsed, now must lie within tolerance of the first trigger at
// or after now-tolerance, so a poll slightly after the slot still counts.
func ShouldFire(cfg reminder.Configuration, st reminder.RunState, now time.Time, tolerance time.Duration) (bool, error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if st.LastFiredAt != nil && now.Sub(*st.LastFiredAt) < MinInterval(cfg.Frequency) {
		return false, nil
	}
	next, err := reminder.NextTrigger(cfg, now.Add(-tolerance-time.Nanosecond))
	if err != nil {
		return false, err
	}
	diff := now.Sub(next)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance, nil
}

// Spacer enforces a minimum gap between successive channel calls. A nil
// Spacer or a zero gap never waits.
type Spacer struct {
	lim *rate.Limiter
}

func NewSpacer(gap time.Duration) *Spacer {
	if gap <= 0 {
		return nil
	}
	return &Spacer{lim: rate.NewLimiter(rate.Every(gap), 1)}
}

// Wait blocks until the next call may start or ctx is done.
func (s *Spacer) Wait(ctx context.Context) error {
	if s == nil || s.lim == nil {
		return nil
	}
	return s.lim.Wait(ctx)
}
