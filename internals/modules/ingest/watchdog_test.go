package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"pulsewatch/internals/modules/dispatch"
	"pulsewatch/internals/modules/status"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeStaleStore struct {
	reqs   []dispatch.PendingCheckRequest
	gotCut time.Time
}

func (f *fakeStaleStore) ListUnansweredBefore(_ context.Context, cutoff time.Time, _ int) ([]dispatch.PendingCheckRequest, error) {
	f.gotCut = cutoff
	return f.reqs, nil
}

type failingConsumeStore struct {
	fakeConsumeStore
	failFor uuid.UUID
}

func (f *failingConsumeStore) Consume(ctx context.Context, req dispatch.PendingCheckRequest, rec status.Record) error {
	if req.ID == f.failFor {
		return errors.New("store unavailable")
	}
	return f.fakeConsumeStore.Consume(ctx, req, rec)
}

func staleRequest(dispatchedAt time.Time) dispatch.PendingCheckRequest {
	return dispatch.PendingCheckRequest{
		ID:           uuid.New(),
		TargetID:     uuid.New(),
		Region:       "eu-west",
		DispatchedAt: dispatchedAt,
	}
}

func TestSweepStaleSynthesizesDownRecords(t *testing.T) {
	now := time.Now()
	pending := &fakeStaleStore{reqs: []dispatch.PendingCheckRequest{
		staleRequest(now.Add(-10 * time.Minute)),
		staleRequest(now.Add(-8 * time.Minute)),
	}}
	store := &fakeConsumeStore{}
	log := zerolog.Nop()

	w := NewWatchdog(context.Background(), time.Minute, 3*time.Minute, 100, pending, store, &log)

	count, err := w.SweepStale(context.Background(), now)
	if err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if count != 2 {
		t.Fatalf("converted = %d, want 2", count)
	}

	if want := now.Add(-3 * time.Minute); !pending.gotCut.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", pending.gotCut, want)
	}

	for _, rec := range store.consumed {
		if rec.Status != status.StatusDown {
			t.Fatalf("synthesized status = %s, want down", rec.Status)
		}
		if !rec.Synthetic {
			t.Fatal("synthesized record not flagged synthetic")
		}
		if !rec.ObservedAt.Equal(now) {
			t.Fatalf("observed_at = %v, want sweep time %v", rec.ObservedAt, now)
		}
	}
}

func TestSweepStaleIsolatesStoreFailures(t *testing.T) {
	now := time.Now()
	bad := staleRequest(now.Add(-10 * time.Minute))
	good := staleRequest(now.Add(-9 * time.Minute))

	pending := &fakeStaleStore{reqs: []dispatch.PendingCheckRequest{bad, good}}
	store := &failingConsumeStore{failFor: bad.ID}
	log := zerolog.Nop()

	w := NewWatchdog(context.Background(), time.Minute, 3*time.Minute, 100, pending, store, &log)

	count, err := w.SweepStale(context.Background(), now)
	if err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if count != 1 {
		t.Fatalf("converted = %d, want 1 despite one failure", count)
	}
}
