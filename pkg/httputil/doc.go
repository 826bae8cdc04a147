// Package httputil provides retry helpers for registry clients.
//
// # Overview
//
// Registry fetches fail transiently: connections drop, servers answer 5xx,
// rate limiters answer 429. This package separates deciding whether a
// failure is transient from scheduling the retries:
//
//   - [Retryable] marks an error as transient, [IsRetryable] tests for it
//   - [Backoff] re-runs an operation with exponentially growing delays
//
// Resolution itself is never retried, only fetches.
//
// # Retry
//
// [Backoff.Do] calls the operation until it succeeds, returns an error not
// marked with [Retryable], or the attempts run out. A [RetryableError] with
// After set (from a Retry-After header) replaces the next delay.
//
//	err := httputil.DefaultBackoff.Do(ctx, func(attempt int) error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return httputil.Retryable(err)
//	    }
//	    defer resp.Body.Close()
//	    if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
//	        return httputil.Retryable(fmt.Errorf("%s: %s", req.URL, resp.Status))
//	    }
//	    return decode(resp.Body)
//	})
//
// # Configuration
//
// [DefaultBackoff] makes three attempts, waiting one second before the
// second and doubling up to thirty seconds. A context that ends while
// waiting stops the schedule with ctx.Err().
package httputil
