// Package scheduler runs the daily owner-usage reset at a fixed wall-clock
// time in one configured timezone.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// ResetHour is the wall-clock hour (in the configured zone) the usage reset
// fires at.
const ResetHour = 0

// UsageResetter zeroes the per-owner daily counters. Implemented by the
// database layer.
type UsageResetter interface {
	ResetAllUsage(ctx context.Context) (int64, error)
}

// DailyReset fires the usage reset once per day at ResetHour in a single
// configured location. All owners reset together; quotas are not tracked per
// owner timezone.
type DailyReset struct {
	resetter UsageResetter
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
	// after is injectable so tests can drive the wait loop.
	after func(d time.Duration) <-chan time.Time
}

// NewDailyReset creates the scheduler. A nil location means UTC.
func NewDailyReset(resetter UsageResetter, location *time.Location, logger *slog.Logger) *DailyReset {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DailyReset{
		resetter: resetter,
		location: location,
		logger:   logger,
		now:      time.Now,
		after:    time.After,
	}
}

// NextReset returns the first reset instant after the given time.
func (s *DailyReset) NextReset(after time.Time) time.Time {
	local := after.In(s.location)
	next := time.Date(local.Year(), local.Month(), local.Day(), ResetHour, 0, 0, 0, s.location)
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run loops until the context is cancelled, firing the reset at each
// boundary. A failed reset is logged and retried at the next boundary.
func (s *DailyReset) Run(ctx context.Context) {
	for {
		next := s.NextReset(s.now())
		s.logger.Info("usage reset scheduled", "at", next, "zone", s.location.String())

		select {
		case <-ctx.Done():
			return
		case <-s.after(next.Sub(s.now())):
		}

		count, err := s.resetter.ResetAllUsage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("usage reset failed", "error", err)
			continue
		}
		s.logger.Info("usage reset completed", "owners", count)
	}
}
