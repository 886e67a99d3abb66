// Package retry provides the bounded retry loop used at the API boundary for
// transient store failures. Exponential backoff, no jitter; the attempt budget
// is small enough that jitter buys nothing here.
package retry

import (
	"context"
	"time"
)

// Do runs fn up to attempts times, sleeping base, 2*base, 4*base... between
// tries. It retries only while shouldRetry returns true for the error and the
// context is alive. The last error is returned.
func Do(ctx context.Context, attempts int, base time.Duration, shouldRetry func(error) bool, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	backoff := base
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil || !shouldRetry(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return err
		}
		backoff *= 2
	}
	return err
}
