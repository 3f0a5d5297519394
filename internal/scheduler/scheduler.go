// Package scheduler runs the attendance check on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "hrwatch/internal/log"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler wraps a cron instance whose jobs never overlap.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	entryID  cron.EntryID
}

// New parses schedule (standard 5-field cron, or descriptors such as
// "@every 6h") in loc and registers job. Each run gets a child context of
// ctx bounded by timeout when timeout > 0. A run that is still going when
// the next tick arrives causes that tick to be skipped.
func New(ctx context.Context, schedule string, loc *time.Location, timeout time.Duration, job Job) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	id, err := c.AddFunc(schedule, func() {
		runCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := job(runCtx); err != nil {
			appLog.Error("scheduled check failed", err, "schedule", schedule)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return &Scheduler{cron: c, schedule: schedule, entryID: id}, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	appLog.Info("scheduler started", "schedule", s.schedule, "next", s.Next().Format(time.RFC3339))
}

// Next returns the next activation time, or zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Stop halts scheduling and waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		appLog.Info("scheduler stopped")
	case <-ctx.Done():
		appLog.Warn("scheduler stop timed out waiting for running check")
	}
}

// cronLogger adapts cron's logr-style logger to the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
