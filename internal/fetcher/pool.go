package fetcher

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"spotifetch/pkg/logger"
)

// MaxConcurrency caps the number of in-flight fetches
const MaxConcurrency = 16

// FetchFunc fetches a single item by id. It is expected to carry its own
// retry handling.
type FetchFunc[T any] func(ctx context.Context, id string) (T, error)

// ProgressFunc is called after each successful fetch with the number of
// completed items and the total. It may be called from several goroutines.
type ProgressFunc func(done, total int)

// Pool fetches items by id with a bounded number of workers
type Pool[T any] struct {
	concurrency int
	fetch       FetchFunc[T]
	logger      logger.Logger
	progress    ProgressFunc
}

// NewPool creates a pool running at most concurrency fetches at a time.
// Values outside [1, MaxConcurrency] are clamped.
func NewPool[T any](concurrency int, fetch FetchFunc[T], log logger.Logger) *Pool[T] {
	if log == nil {
		log = logger.GetLogger()
	}

	if concurrency < 1 {
		concurrency = 1
	} else if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}

	return &Pool[T]{
		concurrency: concurrency,
		fetch:       fetch,
		logger:      log,
	}
}

// Concurrency returns the effective worker limit
func (p *Pool[T]) Concurrency() int {
	return p.concurrency
}

// OnProgress registers fn to be told about completed fetches
func (p *Pool[T]) OnProgress(fn ProgressFunc) *Pool[T] {
	p.progress = fn
	return p
}

// Run fetches every id and returns the results in the order of ids.
// The first failure cancels the remaining fetches; in that case no results
// are returned.
func (p *Pool[T]) Run(ctx context.Context, ids []string) ([]T, error) {
	results := make([]T, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	start := time.Now()
	p.logger.DebugWithFields("starting fetch pool", map[string]interface{}{
		"items":       len(ids),
		"concurrency": p.concurrency,
	})

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, id := range ids {
		g.Go(func() error {
			// a sibling already failed
			if err := gctx.Err(); err != nil {
				return err
			}

			item, err := p.fetch(gctx, id)
			if err != nil {
				return err
			}
			results[i] = item
			if p.progress != nil {
				p.progress(int(done.Add(1)), len(ids))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		p.logger.WarnWithFields("fetch pool aborted", map[string]interface{}{
			"items":    len(ids),
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return nil, err
	}

	p.logger.DebugWithFields("fetch pool finished", map[string]interface{}{
		"items":    len(ids),
		"duration": time.Since(start),
	})
	return results, nil
}
