package ptyrun

import (
	"context"
	"time"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
)

// RetryPlan configures WithWidenedRetry. Zero geometries and timeouts fall
// back to DefaultGeometry/WidenedGeometry and the runner default. The retry
// always gets more columns and a longer timeout than the first attempt.
type RetryPlan struct {
	First          Geometry
	FirstTimeout   time.Duration
	Widened        Geometry
	WidenedTimeout time.Duration
	Delay          time.Duration
	Retryable      func(error) bool
}

// Retryable reports whether a capture failure may succeed on a larger
// terminal: timeouts and screens that did not parse.
func Retryable(err error) bool {
	switch core.KindOf(err) {
	case core.KindTimeout, core.KindMalformed:
		return true
	}
	return false
}

// WithWidenedRetry runs attempt once with the first geometry and, when that
// fails retryably, exactly once more with the widened geometry and a longer
// timeout after Delay.
// The second error is returned as is.
func WithWidenedRetry[T any](ctx context.Context, plan RetryPlan, attempt func(ctx context.Context, geo Geometry, timeout time.Duration) (T, error)) (T, error) {
	first := plan.First.orDefault()
	widened := plan.Widened
	if widened.Rows == 0 || widened.Cols == 0 {
		widened = WidenedGeometry
	}
	if widened.Cols <= first.Cols || widened.Rows < first.Rows {
		widened = Geometry{Rows: max(widened.Rows, first.Rows), Cols: max(widened.Cols, first.Cols+first.Cols/2)}
	}
	firstTimeout := plan.FirstTimeout
	if firstTimeout <= 0 {
		firstTimeout = defaultTimeout
	}
	widenedTimeout := plan.WidenedTimeout
	if widenedTimeout <= firstTimeout {
		widenedTimeout = 2 * firstTimeout
	}
	retryable := plan.Retryable
	if retryable == nil {
		retryable = Retryable
	}

	out, err := attempt(ctx, first, firstTimeout)
	if err == nil || !retryable(err) {
		return out, err
	}

	if plan.Delay > 0 {
		t := time.NewTimer(plan.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			var zero T
			return zero, ctxError(ctx.Err())
		case <-t.C:
		}
	}
	return attempt(ctx, widened, widenedTimeout)
}
