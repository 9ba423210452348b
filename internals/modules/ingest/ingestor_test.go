package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"pulsewatch/internals/modules/dispatch"
	"pulsewatch/internals/modules/status"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakePendingLister struct {
	mu          sync.Mutex
	reqs        []dispatch.PendingCheckRequest
	quarantined map[uuid.UUID]bool
}

func (f *fakePendingLister) ListAnswered(_ context.Context, limit int) ([]dispatch.PendingCheckRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []dispatch.PendingCheckRequest
	for _, r := range f.reqs {
		if f.quarantined[r.ID] {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakePendingLister) MarkDecodeFailed(_ context.Context, requestID uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quarantined == nil {
		f.quarantined = make(map[uuid.UUID]bool)
	}
	f.quarantined[requestID] = true
	return nil
}

type fakeConsumeStore struct {
	mu       sync.Mutex
	consumed []status.Record
}

func (f *fakeConsumeStore) Consume(_ context.Context, _ dispatch.PendingCheckRequest, rec status.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed = append(f.consumed, rec)
	return nil
}

func answeredRequest(raw string, answeredAt time.Time) dispatch.PendingCheckRequest {
	return dispatch.PendingCheckRequest{
		ID:           uuid.New(),
		TargetID:     uuid.New(),
		Region:       "us-east",
		DispatchedAt: answeredAt.Add(-10 * time.Second),
		RawResponse:  &raw,
		AnsweredAt:   &answeredAt,
	}
}

func TestIngestPendingConvertsAnsweredRequests(t *testing.T) {
	answeredAt := time.Now().Truncate(time.Second)
	reqs := []dispatch.PendingCheckRequest{
		answeredRequest(`{"status_code":200,"latency_ms":42}`, answeredAt),
		answeredRequest(`{"status_code":500,"latency_ms":900}`, answeredAt),
	}

	store := &fakeConsumeStore{}
	log := zerolog.Nop()
	in := NewIngestor(context.Background(), time.Second, 4, 100, &fakePendingLister{reqs: reqs}, store, &log)

	created, skipped, err := in.IngestPending(context.Background())
	if err != nil {
		t.Fatalf("IngestPending: %v", err)
	}
	if created != 2 || skipped != 0 {
		t.Fatalf("created=%d skipped=%d, want 2/0", created, skipped)
	}

	statuses := map[status.Status]int{}
	for _, rec := range store.consumed {
		statuses[rec.Status]++
		if !rec.ObservedAt.Equal(answeredAt) {
			t.Fatalf("observed_at = %v, want answered time %v", rec.ObservedAt, answeredAt)
		}
		if rec.Synthetic {
			t.Fatal("ingested record flagged synthetic")
		}
	}
	if statuses[status.StatusUp] != 1 || statuses[status.StatusDown] != 1 {
		t.Fatalf("status mix = %v, want one up and one down", statuses)
	}
}

func TestIngestPendingQuarantinesMalformed(t *testing.T) {
	answeredAt := time.Now()
	malformed := answeredRequest(`not even close to json`, answeredAt)
	reqs := []dispatch.PendingCheckRequest{
		answeredRequest(`{"status_code":200,"latency_ms":42}`, answeredAt),
		malformed,
	}

	pending := &fakePendingLister{reqs: reqs}
	store := &fakeConsumeStore{}
	log := zerolog.Nop()
	in := NewIngestor(context.Background(), time.Second, 2, 100, pending, store, &log)

	created, skipped, err := in.IngestPending(context.Background())
	if err != nil {
		t.Fatalf("IngestPending: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
	if skipped != 1 {
		t.Fatalf("skipped_malformed = %d, want 1", skipped)
	}
	// the malformed one must not have reached the store
	if len(store.consumed) != 1 {
		t.Fatalf("consumed %d records, want 1", len(store.consumed))
	}
	if !pending.quarantined[malformed.ID] {
		t.Fatal("malformed request was not quarantined")
	}
}

func TestIngestPendingMalformedBacklogDoesNotStarveValid(t *testing.T) {
	// a pile of junk payloads older than the one valid response, with a batch
	// size too small to reach past them on the first listing
	answeredAt := time.Now().Add(-time.Minute)
	var reqs []dispatch.PendingCheckRequest
	for i := 0; i < 10; i++ {
		reqs = append(reqs, answeredRequest(`garbage`, answeredAt))
	}
	reqs = append(reqs, answeredRequest(`{"status_code":200,"latency_ms":5}`, time.Now()))

	pending := &fakePendingLister{reqs: reqs}
	store := &fakeConsumeStore{}
	log := zerolog.Nop()
	in := NewIngestor(context.Background(), time.Second, 2, 10, pending, store, &log)

	created, skipped, err := in.IngestPending(context.Background())
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if created != 0 || skipped != 10 {
		t.Fatalf("first pass created=%d skipped=%d, want 0/10", created, skipped)
	}

	// the junk is quarantined now, so the next pass must reach the valid one
	created, skipped, err = in.IngestPending(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if created != 1 || skipped != 0 {
		t.Fatalf("second pass created=%d skipped=%d, want 1/0", created, skipped)
	}
	if len(store.consumed) != 1 || store.consumed[0].Status != status.StatusUp {
		t.Fatalf("consumed = %v, want the one valid up record", store.consumed)
	}
}

func TestIngestPendingEmptyBatch(t *testing.T) {
	store := &fakeConsumeStore{}
	log := zerolog.Nop()
	in := NewIngestor(context.Background(), time.Second, 2, 100, &fakePendingLister{}, store, &log)

	created, skipped, err := in.IngestPending(context.Background())
	if err != nil {
		t.Fatalf("IngestPending: %v", err)
	}
	if created != 0 || skipped != 0 {
		t.Fatalf("created=%d skipped=%d, want 0/0", created, skipped)
	}
}
