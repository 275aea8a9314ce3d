package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	errs "spotifetch/pkg/errors"
)

const (
	// DefaultMaxRetries is the attempt budget applied to every data call
	DefaultMaxRetries = 10
	// DefaultJitterMin and DefaultJitterMax bound the random part of each wait, in units
	DefaultJitterMin = 1
	DefaultJitterMax = 3
	// DefaultUnit is the length of one wait unit
	DefaultUnit = time.Second
)

// Operation performs exactly one remote call
type Operation func() error

// OperationWithResult performs exactly one remote call and returns its result
type OperationWithResult[T any] func() (T, error)

// Policy holds retry configuration. The zero value is usable: MaxRetries and
// Unit fall back to their defaults. Every wait is at least one unit; jitter
// bounds below DefaultJitterMin are raised to it.
type Policy struct {
	// MaxRetries is the upper bound on total attempts
	MaxRetries int
	// Unit is the duration of one wait unit (hint seconds and jitter)
	Unit time.Duration
	// JitterMin and JitterMax bound the inclusive jitter range, in units.
	// JitterMin is raised to DefaultJitterMin and JitterMax to JitterMin.
	JitterMin int
	JitterMax int
	// Observer receives diagnostics before each attempt and each sleep
	Observer Observer
	// Sleep blocks for the computed wait; defaults to Wait
	Sleep func(ctx context.Context, d time.Duration) error
	// Intn returns a uniform int in [0, n); defaults to math/rand/v2
	Intn func(n int) int
}

// DefaultPolicy returns a policy with the standard budget and jitter
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries: DefaultMaxRetries,
		Unit:       DefaultUnit,
		JitterMin:  DefaultJitterMin,
		JitterMax:  DefaultJitterMax,
		Observer:   NopObserver{},
	}
}

// WithMaxRetries returns a copy of the policy with a different budget
func (p *Policy) WithMaxRetries(maxRetries int) *Policy {
	np := *p
	np.MaxRetries = maxRetries
	return &np
}

// WithJitter returns a copy of the policy with different jitter bounds
func (p *Policy) WithJitter(minUnits, maxUnits int) *Policy {
	np := *p
	np.JitterMin = minUnits
	np.JitterMax = maxUnits
	return &np
}

// WithObserver returns a copy of the policy reporting to o
func (p *Policy) WithObserver(o Observer) *Policy {
	np := *p
	np.Observer = o
	return &np
}

func (p *Policy) maxRetries() int {
	if p.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return p.MaxRetries
}

func (p *Policy) unit() time.Duration {
	if p.Unit <= 0 {
		return DefaultUnit
	}
	return p.Unit
}

func (p *Policy) observer() Observer {
	if p.Observer == nil {
		return NopObserver{}
	}
	return p.Observer
}

func (p *Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep == nil {
		return Wait(ctx, d)
	}
	return p.Sleep(ctx, d)
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. target names the call in diagnostics and in the
// exhaustion error.
func (p *Policy) Do(ctx context.Context, target string, op Operation) error {
	maxRetries := p.maxRetries()
	observer := p.observer()

	for attempt := 1; ; attempt++ {
		observer.OnAttempt(attempt, target)

		err := op()
		if err == nil {
			return nil
		}

		class := Classify(err)
		if !class.Retryable() {
			return err
		}

		if attempt >= maxRetries {
			return &errs.RetryExhaustedError{
				Target:   target,
				Attempts: attempt,
				Last:     err,
			}
		}

		wait := p.NextWait(err, class)
		observer.OnWait(attempt, target, wait, err)

		if sleepErr := p.sleep(ctx, wait); sleepErr != nil {
			return fmt.Errorf("%s: retry cancelled after attempt %d: %w (last error: %w)", target, attempt, sleepErr, err)
		}
	}
}

// DoWithResult runs op under the policy p and returns its result
func DoWithResult[T any](ctx context.Context, p *Policy, target string, op OperationWithResult[T]) (T, error) {
	var result T

	err := p.Do(ctx, target, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return result, nil
}

// Classification tags a failure as retryable or not
type Classification int

const (
	ClassOther Classification = iota
	ClassNetwork
	ClassThrottling
)

func (c Classification) String() string {
	switch c {
	case ClassNetwork:
		return "network"
	case ClassThrottling:
		return "throttling"
	default:
		return "other"
	}
}

// Retryable reports whether failures of this class are worth another attempt
func (c Classification) Retryable() bool {
	return c == ClassNetwork || c == ClassThrottling
}

// Classify derives the classification of err from the kind set where the
// transport error was first caught. Errors without a kind are ClassOther.
func Classify(err error) Classification {
	var apiErr *errs.Error
	if !errors.As(err, &apiErr) {
		return ClassOther
	}

	switch apiErr.Kind {
	case errs.KindNetwork:
		return ClassNetwork
	case errs.KindRateLimit:
		return ClassThrottling
	default:
		return ClassOther
	}
}

// jitter returns a uniform number of units in [JitterMin, JitterMax], never
// less than DefaultJitterMin
func (p *Policy) jitter() int {
	lo, hi := max(p.JitterMin, DefaultJitterMin), p.JitterMax
	if hi <= lo {
		return lo
	}

	intn := p.Intn
	if intn == nil {
		intn = rand.IntN
	}
	return lo + intn(hi-lo+1)
}
