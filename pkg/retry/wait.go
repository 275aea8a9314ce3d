package retry

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	errs "spotifetch/pkg/errors"
)

// ParseRetryAfter reads a Retry-After value as a whole number of seconds.
// Missing, negative or non-numeric values yield 0, meaning retry right away
// (with jitter only).
func ParseRetryAfter(value string) int {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}

// hint returns the server-supplied wait, in units, for a failure
func hint(err error, class Classification) int {
	if class != ClassThrottling {
		return 0
	}

	var apiErr *errs.Error
	if !errors.As(err, &apiErr) {
		return 0
	}
	return ParseRetryAfter(apiErr.RetryAfter)
}

// NextWait computes the delay before the next attempt: the Retry-After hint
// for throttling failures plus jitter.
func (p *Policy) NextWait(err error, class Classification) time.Duration {
	unit := p.unit()
	units := int64(p.jitter())

	// clamp absurd hints so the product cannot overflow
	limit := int64(math.MaxInt64/unit) - units
	h := int64(hint(err, class))
	if h > limit {
		h = limit
	}

	return time.Duration(h+units) * unit
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
