package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"soundtracker/internal/domain"
	"soundtracker/internal/ports"
)

type fakeStore struct {
	due        []domain.SoundRecord
	queryErr   error
	queries    int
	written    []domain.SoundRecord
	lastSeen   []time.Time
	writeErrs  map[string]error
	writeCalls int
}

func (s *fakeStore) QueryDue(ctx context.Context, now time.Time, threshold time.Duration, limit int) ([]domain.SoundRecord, error) {
	s.queries++
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if len(s.due) > limit {
		return s.due[:limit], nil
	}
	return s.due, nil
}

func (s *fakeStore) WriteRecord(ctx context.Context, rec domain.SoundRecord, lastSeen time.Time) error {
	s.writeCalls++
	if err := s.writeErrs[rec.URL]; err != nil {
		return err
	}
	s.written = append(s.written, rec)
	s.lastSeen = append(s.lastSeen, lastSeen)
	return nil
}

type fakeBatch struct {
	results map[string]domain.FetchResult
	calls   int
}

func (b *fakeBatch) RunBatch(ctx context.Context, urls []string) map[string]domain.FetchResult {
	b.calls++
	out := make(map[string]domain.FetchResult, len(urls))
	for _, u := range urls {
		out[u] = b.results[u]
	}
	return out
}

func dueRecord(url string, lastRefresh time.Time) domain.SoundRecord {
	return domain.SoundRecord{
		ID:            uuid.New(),
		OwnerID:       "user-1",
		URL:           url,
		LastRefreshAt: lastRefresh,
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunCycleZeroDueRecords(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	batch := &fakeBatch{}
	d := NewCycleDriver(store, batch, 24*time.Hour, 20, 0, discard())

	summary, err := d.RunCycle(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if summary.Selected != 0 || summary.Succeeded != 0 || summary.Failed != 0 || summary.Aborted != 0 {
		t.Fatalf("expected all-zero summary, got %+v", summary)
	}
	if batch.calls != 0 {
		t.Fatal("no fetches must run when nothing is due")
	}
	if store.writeCalls != 0 {
		t.Fatal("no persistence must run when nothing is due")
	}
}

func TestRunCycleSelectorFailureIsFatal(t *testing.T) {
	t.Parallel()

	store := &fakeStore{queryErr: errors.New("store down")}
	d := NewCycleDriver(store, &fakeBatch{}, 24*time.Hour, 20, 0, discard())

	if _, err := d.RunCycle(context.Background(), time.Now()); err == nil {
		t.Fatal("expected selector failure to abort the cycle")
	}
}

func TestRunCycleMergesResults(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.February, 10, 8, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)

	recA := dueRecord("https://www.tiktok.com/music/a", old)
	recA.CountHistory = []int64{100}
	recA.SampleTimes = []time.Time{old}
	recB := dueRecord("https://www.tiktok.com/music/b", old)

	success := domain.Success("Sound A", "Artist", "", 150)
	success.Attempts = 2
	failure := domain.Failure(domain.ResultNotFound, "gone")
	failure.Attempts = 1

	store := &fakeStore{due: []domain.SoundRecord{recA, recB}}
	batch := &fakeBatch{results: map[string]domain.FetchResult{
		recA.URL: success,
		recB.URL: failure,
	}}
	d := NewCycleDriver(store, batch, 24*time.Hour, 20, 0, discard())

	summary, err := d.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if summary.Selected != 2 || summary.Succeeded != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Retried != 1 {
		t.Fatalf("expected 1 retry counted, got %d", summary.Retried)
	}
	if len(store.written) != 2 {
		t.Fatalf("expected both records persisted, got %d", len(store.written))
	}

	// The success appended history; the failure only advanced the clock.
	var gotA, gotB domain.SoundRecord
	for _, rec := range store.written {
		switch rec.URL {
		case recA.URL:
			gotA = rec
		case recB.URL:
			gotB = rec
		}
	}
	if len(gotA.CountHistory) != 2 || gotA.CurrentCount != 150 {
		t.Fatalf("success not merged: %+v", gotA)
	}
	if len(gotB.CountHistory) != 0 || !gotB.LastRefreshAt.Equal(now) {
		t.Fatalf("failure handling wrong: %+v", gotB)
	}

	// Conditional writes must carry the refresh time seen at selection.
	for _, seen := range store.lastSeen {
		if !seen.Equal(old) {
			t.Fatalf("expected lastSeen %v, got %v", old, seen)
		}
	}
}

func TestRunCycleSkipsAbortedItems(t *testing.T) {
	t.Parallel()

	now := time.Now()
	rec := dueRecord("https://www.tiktok.com/music/a", now.Add(-48*time.Hour))

	aborted := domain.Failure(domain.ResultAborted, "deadline")
	store := &fakeStore{due: []domain.SoundRecord{rec}}
	batch := &fakeBatch{results: map[string]domain.FetchResult{rec.URL: aborted}}
	d := NewCycleDriver(store, batch, 24*time.Hour, 20, 0, discard())

	summary, err := d.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if summary.Aborted != 1 {
		t.Fatalf("expected 1 aborted, got %+v", summary)
	}
	if store.writeCalls != 0 {
		t.Fatal("aborted items must not be persisted; they stay due")
	}
}

func TestRunCycleCountsConflicts(t *testing.T) {
	t.Parallel()

	now := time.Now()
	rec := dueRecord("https://www.tiktok.com/music/a", now.Add(-48*time.Hour))

	store := &fakeStore{
		due:       []domain.SoundRecord{rec},
		writeErrs: map[string]error{rec.URL: ports.ErrConflict},
	}
	batch := &fakeBatch{results: map[string]domain.FetchResult{
		rec.URL: domain.Success("", "", "", 10),
	}}
	d := NewCycleDriver(store, batch, 24*time.Hour, 20, 0, discard())

	summary, err := d.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("a lost write race must not fail the cycle: %v", err)
	}
	if summary.Conflicts != 1 {
		t.Fatalf("expected 1 conflict, got %+v", summary)
	}
}
