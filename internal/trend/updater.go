// Package trend merges fetch results into a record's append-only history
// and recomputes the windowed percentage-change metrics.
package trend

import (
	"time"

	"soundtracker/internal/domain"
)

// Change windows. A "month" is the fixed 30-day window the counter trends
// are charted over, not a calendar month.
const (
	WindowDay   = 24 * time.Hour
	WindowWeek  = 7 * 24 * time.Hour
	WindowMonth = 30 * 24 * time.Hour
)

// Apply merges one fetch result into the record.
//
// On success the count and timestamp are appended to the parallel history
// sequences, descriptive fields are refreshed, and the windowed changes
// are recomputed. On any failure only LastRefreshAt advances, so a
// hard-failing record cannot monopolize every cycle's selection slots.
func Apply(rec *domain.SoundRecord, res domain.FetchResult, now time.Time) {
	rec.LastRefreshAt = now

	if !res.OK() {
		return
	}

	rec.CountHistory = append(rec.CountHistory, res.Count)
	rec.SampleTimes = append(rec.SampleTimes, now)
	rec.CurrentCount = res.Count

	if res.Name != "" {
		rec.Name = res.Name
	}
	if res.Creator != "" {
		rec.CreatorName = res.Creator
	}
	if res.IconURL != "" {
		rec.IconURL = res.IconURL
	}

	rec.PctChange1D = PctChange(rec.CountHistory, rec.SampleTimes, now, WindowDay)
	rec.PctChange1W = PctChange(rec.CountHistory, rec.SampleTimes, now, WindowWeek)
	rec.PctChange1M = PctChange(rec.CountHistory, rec.SampleTimes, now, WindowMonth)
}

// PctChange returns the relative change, in percent, between the latest
// count and the reference sample: the most recent sample taken at or
// before now-window, excluding the latest sample itself. It returns 0
// when no reference exists (short history) or the reference count is 0
// (an all-zero history is a valid transient state, not a fault).
func PctChange(counts []int64, times []time.Time, now time.Time, window time.Duration) float64 {
	if len(counts) == 0 || len(counts) != len(times) {
		return 0
	}

	current := counts[len(counts)-1]
	cutoff := now.Add(-window)

	for i := len(counts) - 2; i >= 0; i-- {
		if times[i].After(cutoff) {
			continue
		}
		reference := counts[i]
		if reference == 0 {
			return 0
		}
		return float64(current-reference) / float64(reference) * 100
	}
	return 0
}
