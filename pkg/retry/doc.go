// Package retry runs single-shot, idempotent API calls under a bounded retry
// budget.
//
// Every failure is classified once by Classify:
//   - Network failures (the transport could not complete): retried
//   - Throttling failures (HTTP 429): retried, honoring Retry-After
//   - Anything else: returned immediately, unchanged
//
// Before each retry the policy sleeps for the server's Retry-After hint (0 if
// absent or unparseable, and always 0 for network failures) plus a uniform
// jitter of 1 to 3 seconds. When the budget is spent the last failure is
// returned wrapped in an *errors.RetryExhaustedError.
//
// Basic usage:
//
//	policy := retry.DefaultPolicy().WithObserver(retry.NewLogObserver(log))
//	track, err := retry.DoWithResult(ctx, policy, "GET /tracks/42", func() (*Track, error) {
//		return client.getTrackOnce(ctx, "42")
//	})
//
// A Policy holds configuration only. Attempt counters live on the stack of a
// single Do call, so one Policy can be shared by concurrent callers.
package retry
