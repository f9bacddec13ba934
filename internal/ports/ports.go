package ports

import (
	"context"
	"errors"
	"time"

	"soundtracker/internal/domain"
)

// ErrConflict is returned by SoundStore.WriteRecord when the record
// changed since it was selected, or on a uniqueness violation. The
// pipeline surfaces it and never retries within the cycle.
var ErrConflict = errors.New("record conflict")

// SoundStore is the narrow read/write contract against the record store.
type SoundStore interface {
	// QueryDue returns records whose last refresh is older than
	// now-threshold (or absent), oldest first, capped to limit.
	QueryDue(ctx context.Context, now time.Time, threshold time.Duration, limit int) ([]domain.SoundRecord, error)

	// WriteRecord persists one record atomically. The write is
	// conditional on lastSeen matching the stored last-refresh timestamp
	// observed at selection time; a mismatch yields ErrConflict.
	WriteRecord(ctx context.Context, rec domain.SoundRecord, lastSeen time.Time) error
}

// Fetcher retrieves and parses one sound page, optionally through the
// given egress endpoint (nil means a direct fetch).
type Fetcher interface {
	Fetch(ctx context.Context, soundURL string, via *domain.ProxyEndpoint) domain.FetchResult
}

// ProxyPool hands out egress endpoints and tracks their health.
type ProxyPool interface {
	// Acquire returns the least-recently-used available endpoint, or
	// proxy.ErrNoneAvailable when the pool is empty or fully cooling down.
	Acquire() (domain.ProxyEndpoint, error)
	ReportFailure(ep domain.ProxyEndpoint)
	ReportSuccess(ep domain.ProxyEndpoint)
}

// ItemFetcher wraps per-item fetching with retry and rotation policy.
type ItemFetcher interface {
	FetchWithRetry(ctx context.Context, soundURL string) domain.FetchResult
}

// CycleRunner executes one full refresh cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, now time.Time) (domain.CycleSummary, error)
}

// Scheduler controls when cycles execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
