package retry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotifetch/pkg/config"
	errs "spotifetch/pkg/errors"
	"spotifetch/pkg/logger"
)

// fakeSleeper records requested waits instead of sleeping
type fakeSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (f *fakeSleeper) sleep(_ context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, d)
	return nil
}

func (f *fakeSleeper) total() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum time.Duration
	for _, w := range f.waits {
		sum += w
	}
	return sum
}

func testPolicy(maxRetries int, sleeper *fakeSleeper) *Policy {
	p := DefaultPolicy().WithMaxRetries(maxRetries)
	p.Sleep = sleeper.sleep
	return p
}

func networkErr() error {
	return errs.NewNetworkError(errors.New("connection reset by peer"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Classification
	}{
		{"network", networkErr(), ClassNetwork},
		{"rate limited", errs.NewRateLimitError("5"), ClassThrottling},
		{"wrapped rate limit", fmt.Errorf("list albums: %w", errs.NewRateLimitError("")), ClassThrottling},
		{"not found", &errs.Error{Kind: errs.KindNotFound, Code: 404}, ClassOther},
		{"auth", &errs.Error{Kind: errs.KindAuth, Code: 401}, ClassOther},
		{"server error", &errs.Error{Kind: errs.KindServer, Code: 503}, ClassOther},
		{"parsing", &errs.Error{Kind: errs.KindParsing, Code: 200}, ClassOther},
		{"plain error", errors.New("boom"), ClassOther},
		{"context cancelled", context.Canceled, ClassOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want != ClassOther, got.Retryable())
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"5", 5},
		{"0", 0},
		{" 7 ", 7},
		{"", 0},
		{"soon", 0},
		{"-3", 0},
		{"1.5", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.value), func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Equal(t, tt.want, ParseRetryAfter(tt.value))
			})
		})
	}
}

func TestNextWaitBounds(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name     string
		err      error
		min, max time.Duration
	}{
		{"throttled with hint", errs.NewRateLimitError("5"), 6 * time.Second, 8 * time.Second},
		{"throttled without hint", errs.NewRateLimitError(""), 1 * time.Second, 3 * time.Second},
		{"throttled with garbage hint", errs.NewRateLimitError("later"), 1 * time.Second, 3 * time.Second},
		{"network ignores hint", &errs.Error{Kind: errs.KindNetwork, RetryAfter: "30"}, 1 * time.Second, 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class := Classify(tt.err)
			for i := 0; i < 200; i++ {
				wait := p.NextWait(tt.err, class)
				require.GreaterOrEqual(t, wait, tt.min)
				require.LessOrEqual(t, wait, tt.max)
			}
		})
	}
}

func TestNextWaitJitterRange(t *testing.T) {
	p := DefaultPolicy()
	seen := make(map[time.Duration]bool)

	for _, n := range []int{0, 1, 2} {
		n := n
		p.Intn = func(bound int) int {
			assert.Equal(t, 3, bound, "jitter range [1,3] has three values")
			return n
		}
		seen[p.NextWait(networkErr(), ClassNetwork)] = true
	}

	assert.Equal(t, map[time.Duration]bool{
		1 * time.Second: true,
		2 * time.Second: true,
		3 * time.Second: true,
	}, seen)
}

func TestNextWaitHugeHintDoesNotOverflow(t *testing.T) {
	p := DefaultPolicy()
	wait := p.NextWait(errs.NewRateLimitError("9223372036854775807"), ClassThrottling)
	assert.Greater(t, wait, time.Duration(0))
}

func TestDoPermanentErrorNotRetried(t *testing.T) {
	sleeper := &fakeSleeper{}
	permanent := &errs.Error{Kind: errs.KindNotFound, Message: "no such artist", Code: 404}

	calls := 0
	err := testPolicy(10, sleeper).Do(context.Background(), "GET /search", func() error {
		calls++
		return permanent
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, permanent, err, "permanent errors surface unchanged")
	assert.False(t, errs.IsRetryExhausted(err))
	assert.Empty(t, sleeper.waits)
}

func TestDoRetryableExhaustsBudget(t *testing.T) {
	for _, tc := range []struct {
		name string
		make func(i int) error
	}{
		{"network", func(i int) error { return errs.NewNetworkError(fmt.Errorf("attempt %d", i)) }},
		{"rate limited", func(i int) error { return errs.NewRateLimitError("") }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sleeper := &fakeSleeper{}
			var last error

			calls := 0
			err := testPolicy(4, sleeper).Do(context.Background(), "GET /albums/1/tracks", func() error {
				calls++
				last = tc.make(calls)
				return last
			})

			assert.Equal(t, 4, calls)
			require.Error(t, err)
			assert.True(t, errs.IsRetryExhausted(err))
			assert.ErrorIs(t, err, last)

			var exhausted *errs.RetryExhaustedError
			require.ErrorAs(t, err, &exhausted)
			assert.Equal(t, 4, exhausted.Attempts)
			assert.Equal(t, "GET /albums/1/tracks", exhausted.Target)
			assert.Len(t, sleeper.waits, 3, "no wait after the final attempt")
		})
	}
}

func TestDoRateLimitedThenSucceeds(t *testing.T) {
	sleeper := &fakeSleeper{}

	calls := 0
	result, err := DoWithResult(context.Background(), testPolicy(10, sleeper), "GET /tracks/1", func() (string, error) {
		calls++
		if calls <= 2 {
			return "", errs.NewRateLimitError("5")
		}
		return "track-1", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "track-1", result)
	assert.Equal(t, 3, calls)
	require.Len(t, sleeper.waits, 2)
	assert.GreaterOrEqual(t, sleeper.total(), 12*time.Second)
	assert.LessOrEqual(t, sleeper.total(), 16*time.Second)
}

func TestDoMaxRetriesOne(t *testing.T) {
	sleeper := &fakeSleeper{}

	calls := 0
	err := testPolicy(1, sleeper).Do(context.Background(), "GET /artists/1/albums", func() error {
		calls++
		return networkErr()
	})

	assert.Equal(t, 1, calls)
	assert.True(t, errs.IsRetryExhausted(err))
	assert.Empty(t, sleeper.waits)
}

func TestDoZeroMaxRetriesUsesDefault(t *testing.T) {
	sleeper := &fakeSleeper{}
	p := &Policy{Sleep: sleeper.sleep}

	calls := 0
	err := p.Do(context.Background(), "op", func() error {
		calls++
		return networkErr()
	})

	assert.Equal(t, DefaultMaxRetries, calls)
	assert.True(t, errs.IsRetryExhausted(err))
}

func TestDoSucceedsFirstTry(t *testing.T) {
	sleeper := &fakeSleeper{}

	calls := 0
	err := testPolicy(3, sleeper).Do(context.Background(), "op", func() error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.waits)
}

func TestDoCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := DefaultPolicy()
	p.Unit = time.Hour

	var last error
	calls := 0
	err := p.Do(ctx, "op", func() error {
		calls++
		last = networkErr()
		return last
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, last)
	assert.False(t, errs.IsRetryExhausted(err))
}

func TestDoDiagnostics(t *testing.T) {
	sleeper := &fakeSleeper{}
	log := logger.NewTestLogger()
	p := testPolicy(10, sleeper).WithObserver(NewLogObserver(log))

	calls := 0
	err := p.Do(context.Background(), "GET /tracks/9", func() error {
		calls++
		if calls < 3 {
			return errs.NewRateLimitError("1")
		}
		return nil
	})
	require.NoError(t, err)

	attempts := log.GetMessagesByLevel("DEBUG")
	require.Len(t, attempts, 3)
	for i, msg := range attempts {
		assert.Equal(t, "retry attempt", msg.Message)
		assert.Equal(t, i+1, msg.Fields["attempt"])
		assert.Equal(t, "GET /tracks/9", msg.Fields["target"])
		assert.Equal(t, LogChannel, msg.Fields["logger"])
	}

	sleeps := log.GetMessagesByLevel("WARN")
	require.Len(t, sleeps, 2)
	for i, msg := range sleeps {
		assert.Equal(t, "retry sleeping", msg.Message)
		assert.Equal(t, i+1, msg.Fields["attempt"])
		assert.Equal(t, sleeper.waits[i], msg.Fields["wait"])
	}
}

type countingObserver struct {
	mu       sync.Mutex
	attempts int
	waits    int
}

func (c *countingObserver) OnAttempt(int, string) {
	c.mu.Lock()
	c.attempts++
	c.mu.Unlock()
}

func (c *countingObserver) OnWait(int, string, time.Duration, error) {
	c.mu.Lock()
	c.waits++
	c.mu.Unlock()
}

func TestMultiObserver(t *testing.T) {
	a, b := &countingObserver{}, &countingObserver{}
	sleeper := &fakeSleeper{}
	p := testPolicy(2, sleeper).WithObserver(MultiObserver{a, b})

	_ = p.Do(context.Background(), "op", func() error { return networkErr() })

	for _, o := range []*countingObserver{a, b} {
		assert.Equal(t, 2, o.attempts)
		assert.Equal(t, 1, o.waits)
	}
}

func TestPolicySharedAcrossGoroutines(t *testing.T) {
	sleeper := &fakeSleeper{}
	p := testPolicy(3, sleeper)

	const workers = 8
	counts := make([]int, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = p.Do(context.Background(), "op", func() error {
				counts[i]++
				return networkErr()
			})
		}(i)
	}
	wg.Wait()

	for i, c := range counts {
		assert.Equal(t, 3, c, "worker %d", i)
	}
}

func TestWithCopiesDoNotMutate(t *testing.T) {
	base := DefaultPolicy()
	changed := base.WithMaxRetries(2).WithJitter(2, 2)

	assert.Equal(t, DefaultMaxRetries, base.MaxRetries)
	assert.Equal(t, DefaultJitterMax, base.JitterMax)
	assert.Equal(t, 2, changed.MaxRetries)
	assert.Equal(t, 2*time.Second, changed.NextWait(networkErr(), ClassNetwork))
}

func TestNextWaitNeverBelowOneUnit(t *testing.T) {
	tests := []struct {
		name     string
		policy   *Policy
		min, max time.Duration
	}{
		{"zero jitter", DefaultPolicy().WithJitter(0, 0), time.Second, time.Second},
		{"negative inverted jitter", DefaultPolicy().WithJitter(-2, -5), time.Second, time.Second},
		{"zero min keeps max", DefaultPolicy().WithJitter(0, 3), time.Second, 3 * time.Second},
		{"zero value policy", &Policy{}, time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 100; i++ {
				wait := tt.policy.NextWait(networkErr(), ClassNetwork)
				require.GreaterOrEqual(t, wait, tt.min)
				require.LessOrEqual(t, wait, tt.max)
			}
		})
	}

	t.Run("throttled hint adds to the floor", func(t *testing.T) {
		p := DefaultPolicy().WithJitter(0, 0)
		assert.Equal(t, 6*time.Second, p.NextWait(errs.NewRateLimitError("5"), ClassThrottling))
	})
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), 0))
	assert.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
}

func TestLogObserverChannelLevel(t *testing.T) {
	var buf bytes.Buffer
	app, err := logger.NewWithWriter(&config.LoggingConfig{Level: "error"}, &buf)
	require.NoError(t, err)

	retryLog, err := logger.WithLevel(app, "warn")
	require.NoError(t, err)

	p := DefaultPolicy().WithMaxRetries(2).WithObserver(NewLogObserver(retryLog))
	p.Sleep = (&fakeSleeper{}).sleep
	_ = p.Do(context.Background(), "GET /tracks/1", func() error { return networkErr() })
	app.Warn("application warning")

	var messages []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		assert.Equal(t, LogChannel, rec["logger"])
		messages = append(messages, rec["message"].(string))
	}
	assert.Equal(t, []string{"retry sleeping"}, messages)
}
