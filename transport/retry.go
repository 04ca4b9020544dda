package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/jrife/xpquery/page"
	"github.com/jrife/xpquery/partition"
	"github.com/jrife/xpquery/utils/log"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxAttempts is used when RetryConfig.MaxAttempts is zero
	DefaultMaxAttempts = 3
)

// RetryConfig configures WithRetry
type RetryConfig struct {
	// MaxAttempts is the total number of attempts per page,
	// including the first one.
	MaxAttempts int
	// Limiter paces retries. Nil means retries wait 10ms
	// apart with a burst of one.
	Limiter *rate.Limiter
	Logger  *zap.Logger
}

// WithRetry returns a fetcher that retries transient
// failures of fetcher. Other errors, including splits,
// are returned immediately.
func WithRetry(fetcher Fetcher, config RetryConfig) Fetcher {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}

	if config.Limiter == nil {
		config.Limiter = rate.NewLimiter(rate.Every(10*time.Millisecond), 1)
	}

	if config.Logger == nil {
		config.Logger = zap.L()
	}

	return &retryingFetcher{fetcher: fetcher, config: config}
}

type retryingFetcher struct {
	fetcher Fetcher
	config  RetryConfig
}

func (retryingFetcher *retryingFetcher) FetchPage(ctx context.Context, r partition.Range, state *page.State, hint int) (page.Page[page.State], error) {
	logger := log.WithContext(ctx, retryingFetcher.config.Logger).With(zap.String("operation", "FetchPage"), zap.Stringer("range", r))

	var err error
	var result page.Page[page.State]

	for attempt := 1; attempt <= retryingFetcher.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			if waitErr := retryingFetcher.config.Limiter.Wait(ctx); waitErr != nil {
				return page.Page[page.State]{}, retryingFetcher.waitError(ctx, waitErr, err)
			}
		}

		result, err = retryingFetcher.fetcher.FetchPage(ctx, r, state, hint)

		if err == nil || !IsTransient(err) || ctx.Err() != nil {
			return result, err
		}

		logger.Debug("transient failure", zap.Int("attempt", attempt), zap.Error(err))
	}

	logger.Warn("giving up after transient failures", zap.Int("attempts", retryingFetcher.config.MaxAttempts), zap.Error(err))

	return page.Page[page.State]{}, err
}

// waitError explains why the wait before a retry failed.
// The limiter fails early when the wait would outlast the
// context's deadline, so that case reports
// context.DeadlineExceeded while the context is still live.
func (retryingFetcher *retryingFetcher) waitError(ctx context.Context, waitErr error, lastErr error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("%w: retry would not start before the deadline: %s (last error: %w)", context.DeadlineExceeded, waitErr, lastErr)
	}

	return fmt.Errorf("could not wait to retry: %w (last error: %w)", waitErr, lastErr)
}
