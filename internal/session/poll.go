package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPollTimeout is returned when a condition did not hold before the deadline.
var ErrPollTimeout = errors.New("condition not met before deadline")

// Clock abstracts time for polling so tests can run without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// PollUntil evaluates cond every interval until it returns true, returns an
// error, ctx ends or timeout elapses on clock.
func PollUntil(ctx context.Context, clock Clock, interval, timeout time.Duration, cond func(ctx context.Context) (bool, error)) error {
	deadline := clock.Now().Add(timeout)
	attempts := 0
	for {
		attempts++
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !clock.Now().Before(deadline) {
			return fmt.Errorf("%w after %s (%d attempts)", ErrPollTimeout, timeout, attempts)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(interval):
		}
	}
}
