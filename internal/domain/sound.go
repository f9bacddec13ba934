package domain

import (
	"time"

	"github.com/google/uuid"
)

// SoundRecord is a core entity describing one tracked sound and its
// accumulated popularity history. A record is identified by the
// (OwnerID, URL) pair; ID is the store-side surrogate key.
type SoundRecord struct {
	ID      uuid.UUID
	OwnerID string
	URL     string

	// Descriptive fields stay empty until the first successful fetch.
	Name        string
	CreatorName string
	IconURL     string

	// CountHistory and SampleTimes are parallel, index-aligned and
	// append-only. SampleTimes is non-decreasing.
	CountHistory []int64
	SampleTimes  []time.Time

	// Derived metrics, recomputed on every successful refresh.
	CurrentCount int64
	PctChange1D  float64
	PctChange1W  float64
	PctChange1M  float64

	// LastRefreshAt is the time of the most recent fetch attempt,
	// successful or not. The zero value means never refreshed.
	LastRefreshAt time.Time
}

// CycleSummary reports one Selector→Orchestrator→Updater run. It is
// returned to the caller and logged, never persisted.
type CycleSummary struct {
	Selected  int
	Succeeded int
	Failed    int
	Aborted   int
	Conflicts int
	Retried   int
	Duration  time.Duration
}
