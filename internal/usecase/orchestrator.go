package usecase

import (
	"context"
	"log/slog"
	"sync"

	"soundtracker/internal/domain"
	"soundtracker/internal/ports"
)

// BatchOrchestrator fans a set of due identifiers out to the retry
// controller under a bounded concurrency cap. Item failures are
// independent; the batch always settles completely before returning.
type BatchOrchestrator struct {
	fetcher     ports.ItemFetcher
	concurrency int
	logger      *slog.Logger
}

// NewBatchOrchestrator builds the orchestrator; concurrency defaults
// to 20.
func NewBatchOrchestrator(fetcher ports.ItemFetcher, concurrency int, logger *slog.Logger) *BatchOrchestrator {
	if concurrency <= 0 {
		concurrency = 20
	}
	return &BatchOrchestrator{fetcher: fetcher, concurrency: concurrency, logger: logger}
}

// RunBatch fetches every URL in parallel, bounded by the concurrency cap,
// and returns the complete result mapping once all items settle. URLs
// tracked by more than one owner are fetched once. When the cycle is
// cancelled, items that never started are reported as aborted instead of
// being dropped.
func (o *BatchOrchestrator) RunBatch(ctx context.Context, urls []string) map[string]domain.FetchResult {
	results := make(map[string]domain.FetchResult, len(urls))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	sem := make(chan struct{}, o.concurrency)

	for _, u := range urls {
		mu.Lock()
		_, seen := results[u]
		if !seen {
			// Reserve the slot so duplicates are dispatched once.
			results[u] = domain.FetchResult{Kind: domain.ResultAborted}
		}
		mu.Unlock()
		if seen {
			continue
		}

		wg.Add(1)
		go func(u string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				mu.Lock()
				results[u] = domain.Failure(domain.ResultAborted, ctx.Err().Error())
				mu.Unlock()
				return
			}
			defer func() { <-sem }()

			res := o.fetcher.FetchWithRetry(ctx, u)

			mu.Lock()
			results[u] = res
			mu.Unlock()
		}(u)
	}

	wg.Wait()
	return results
}
