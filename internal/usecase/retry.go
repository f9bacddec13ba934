package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"soundtracker/internal/domain"
	"soundtracker/internal/ports"
	"soundtracker/internal/proxy"
)

// ExhaustedPolicy decides what happens when every proxy endpoint is
// cooling down (or none are configured).
type ExhaustedPolicy string

const (
	// ExhaustedDirect fetches without a proxy.
	ExhaustedDirect ExhaustedPolicy = "direct"
	// ExhaustedDefer fails the item so it stays due for the next cycle.
	ExhaustedDefer ExhaustedPolicy = "defer"
)

// RetryController wraps the fetch engine with bounded retries,
// exponential backoff, and proxy rotation on transient failures.
type RetryController struct {
	fetcher     ports.Fetcher
	pool        ports.ProxyPool
	maxAttempts int
	baseDelay   time.Duration
	onExhausted ExhaustedPolicy
	logger      *slog.Logger
}

var _ ports.ItemFetcher = (*RetryController)(nil)

// NewRetryController builds the controller; maxAttempts defaults to 3 and
// baseDelay to 1s.
func NewRetryController(fetcher ports.Fetcher, pool ports.ProxyPool, maxAttempts int, baseDelay time.Duration, onExhausted ExhaustedPolicy, logger *slog.Logger) *RetryController {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if onExhausted == "" {
		onExhausted = ExhaustedDirect
	}
	return &RetryController{
		fetcher:     fetcher,
		pool:        pool,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		onExhausted: onExhausted,
		logger:      logger,
	}
}

// FetchWithRetry attempts the fetch up to maxAttempts times. Transient
// failures (network, blocked) rotate to a fresh endpoint after an
// exponentially growing delay; structural failures (parse, not-found)
// return immediately since retrying cannot fix them.
func (r *RetryController) FetchWithRetry(ctx context.Context, soundURL string) domain.FetchResult {
	var last domain.FetchResult

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		via, res := r.acquire()
		if res != nil {
			res.Attempts = attempt
			return *res
		}

		result := r.fetcher.Fetch(ctx, soundURL, via)
		result.Attempts = attempt

		switch {
		case result.OK():
			if via != nil {
				r.pool.ReportSuccess(*via)
			}
			return result

		case result.Retryable():
			if via != nil {
				r.pool.ReportFailure(*via)
			}
			last = result
			if attempt == r.maxAttempts {
				break
			}
			r.debug("retrying fetch", "url", soundURL, "attempt", attempt, "kind", result.Kind)
			if err := r.backoff(ctx, attempt); err != nil {
				aborted := domain.Failure(domain.ResultAborted, err.Error())
				aborted.Attempts = attempt
				return aborted
			}

		default:
			// Structural failure or abort: the endpoint is not to blame.
			return result
		}
	}

	return last
}

// acquire picks an endpoint, applying the pool-exhaustion policy. A nil
// result with a nil endpoint means "fetch directly".
func (r *RetryController) acquire() (*domain.ProxyEndpoint, *domain.FetchResult) {
	if r.pool == nil {
		return nil, nil
	}

	ep, err := r.pool.Acquire()
	switch {
	case err == nil:
		return &ep, nil
	case errors.Is(err, proxy.ErrNoneAvailable):
		if r.onExhausted == ExhaustedDefer {
			res := domain.Failure(domain.ResultNoProxy, "proxy pool exhausted")
			return nil, &res
		}
		return nil, nil
	default:
		res := domain.Failure(domain.ResultNetworkError, err.Error())
		return nil, &res
	}
}

// backoff waits baseDelay * 2^(attempt-1) plus up to 25% jitter, so many
// items failing through one rotation point do not retry in lockstep.
func (r *RetryController) backoff(ctx context.Context, attempt int) error {
	delay := r.baseDelay << (attempt - 1)
	delay += time.Duration(rand.Int63n(int64(delay)/4 + 1))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *RetryController) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
