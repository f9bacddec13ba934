package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"soundtracker/internal/domain"
	"soundtracker/internal/ports"
	"soundtracker/internal/trend"
)

// BatchRunner is the orchestrator seen by the cycle driver.
type BatchRunner interface {
	RunBatch(ctx context.Context, urls []string) map[string]domain.FetchResult
}

const persistTimeout = 30 * time.Second

// CycleDriver composes Selector → Orchestrator → Updater once per
// invocation. Fetching parallelizes inside the orchestrator; selection
// and the update-and-persist phase run sequentially.
type CycleDriver struct {
	store     ports.SoundStore
	batch     BatchRunner
	threshold time.Duration
	batchSize int
	timeout   time.Duration
	logger    *slog.Logger
}

var _ ports.CycleRunner = (*CycleDriver)(nil)

// NewCycleDriver builds the driver. batchSize must be positive; the
// zero/negative case is treated as a caller bug and mapped to the
// default of 20 rather than a runtime fault.
func NewCycleDriver(store ports.SoundStore, batch BatchRunner, threshold time.Duration, batchSize int, timeout time.Duration, logger *slog.Logger) *CycleDriver {
	if batchSize <= 0 {
		batchSize = 20
	}
	if threshold <= 0 {
		threshold = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CycleDriver{
		store:     store,
		batch:     batch,
		threshold: threshold,
		batchSize: batchSize,
		timeout:   timeout,
		logger:    logger,
	}
}

// RunCycle selects due records, fetches them as one batch, and merges the
// settled results back into the store. Zero due records is the common
// case between refresh intervals and completes immediately. Only a
// selection failure is fatal; everything past it degrades per item.
func (d *CycleDriver) RunCycle(ctx context.Context, now time.Time) (domain.CycleSummary, error) {
	start := time.Now()
	var summary domain.CycleSummary

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	records, err := d.store.QueryDue(ctx, now, d.threshold, d.batchSize)
	if err != nil {
		return summary, fmt.Errorf("query due records: %w", err)
	}

	summary.Selected = len(records)
	if len(records) == 0 {
		summary.Duration = time.Since(start)
		return summary, nil
	}

	urls := make([]string, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.URL]; dup {
			continue
		}
		seen[rec.URL] = struct{}{}
		urls = append(urls, rec.URL)
	}

	results := d.batch.RunBatch(ctx, urls)
	for _, res := range results {
		if res.Attempts > 1 {
			summary.Retried += res.Attempts - 1
		}
	}

	// Persistence keeps going after a cycle deadline expiry: settled
	// results are written rather than thrown away.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	for i := range records {
		rec := records[i]
		res, ok := results[rec.URL]
		if !ok || res.Kind == domain.ResultAborted {
			// Never settled; the record stays due and is picked up
			// by the next cycle.
			summary.Aborted++
			continue
		}

		if res.OK() {
			summary.Succeeded++
		} else {
			summary.Failed++
			d.logger.Warn("refresh failed",
				"url", rec.URL, "kind", res.Kind, "attempts", res.Attempts, "message", res.Message)
		}

		lastSeen := rec.LastRefreshAt
		trend.Apply(&rec, res, now)

		if err := d.store.WriteRecord(persistCtx, rec, lastSeen); err != nil {
			if errors.Is(err, ports.ErrConflict) {
				summary.Conflicts++
				continue
			}
			d.logger.Error("persist record", "url", rec.URL, "error", err)
		}
	}

	summary.Duration = time.Since(start)
	d.logger.Info("cycle complete",
		"selected", summary.Selected,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"aborted", summary.Aborted,
		"conflicts", summary.Conflicts,
		"retried", summary.Retried,
		"duration", summary.Duration)

	return summary, nil
}
