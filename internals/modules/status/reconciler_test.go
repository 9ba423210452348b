package status

import (
	"context"
	"testing"
	"time"

	"pulsewatch/internals/modules/notify"
	"pulsewatch/internals/modules/target"
	"pulsewatch/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestDerive(t *testing.T) {
	regions := []string{"us-east", "eu-west", "ap-south"}

	mkRecords := func(statuses ...Status) []Record {
		recs := make([]Record, 0, len(statuses))
		for i, st := range statuses {
			recs = append(recs, Record{Region: regions[i], Status: st})
		}
		return recs
	}

	tests := []struct {
		name     string
		latest   []Record
		assigned []string
		want     Status
		wantOK   bool
	}{
		{
			name:     "all up",
			latest:   mkRecords(StatusUp, StatusUp, StatusUp),
			assigned: regions,
			want:     StatusUp,
			wantOK:   true,
		},
		{
			name:     "all down",
			latest:   mkRecords(StatusDown, StatusDown, StatusDown),
			assigned: regions,
			want:     StatusDown,
			wantOK:   true,
		},
		{
			name:     "single dissenting down is degraded",
			latest:   mkRecords(StatusUp, StatusUp, StatusDown),
			assigned: regions,
			want:     StatusDegraded,
			wantOK:   true,
		},
		{
			name:     "strict majority down wins",
			latest:   mkRecords(StatusDown, StatusDown, StatusUp),
			assigned: regions,
			want:     StatusDown,
			wantOK:   true,
		},
		{
			name:     "even split is degraded, never down",
			latest:   mkRecords(StatusUp, StatusDown),
			assigned: regions[:2],
			want:     StatusDegraded,
			wantOK:   true,
		},
		{
			name:     "degraded region blocks up",
			latest:   mkRecords(StatusUp, StatusDegraded),
			assigned: regions[:2],
			want:     StatusDegraded,
			wantOK:   true,
		},
		{
			name:     "only reporting regions count",
			latest:   mkRecords(StatusUp),
			assigned: regions,
			want:     StatusUp,
			wantOK:   true,
		},
		{
			name:     "unassigned region is ignored",
			latest:   []Record{{Region: "us-east", Status: StatusUp}, {Region: "mars-1", Status: StatusDown}},
			assigned: []string{"us-east"},
			want:     StatusUp,
			wantOK:   true,
		},
		{
			name:     "no observations",
			latest:   nil,
			assigned: regions,
			wantOK:   false,
		},
		{
			name:     "single region down",
			latest:   mkRecords(StatusDown),
			assigned: regions[:1],
			want:     StatusDown,
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Derive(tt.latest, tt.assigned)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Fatalf("Derive() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDeriveOrderInsensitive(t *testing.T) {
	perms := [][]Status{
		{StatusUp, StatusUp, StatusDown},
		{StatusUp, StatusDown, StatusUp},
		{StatusDown, StatusUp, StatusUp},
	}
	regions := []string{"a", "b", "c"}

	for _, perm := range perms {
		recs := make([]Record, len(perm))
		for i, st := range perm {
			recs[i] = Record{Region: regions[i], Status: st}
		}
		got, ok := Derive(recs, regions)
		if !ok || got != StatusDegraded {
			t.Fatalf("permutation %v derived %s (ok=%v), want degraded", perm, got, ok)
		}
	}
}

type fakeRecordStore struct {
	latest    []Record
	canonical map[uuid.UUID]Canonical
	needing   []uuid.UUID

	upserted  *Canonical
	touched   bool
	touchedAt time.Time
}

func (f *fakeRecordStore) LatestPerRegion(_ context.Context, _ uuid.UUID) ([]Record, error) {
	return f.latest, nil
}

func (f *fakeRecordStore) GetCanonical(_ context.Context, targetID uuid.UUID) (Canonical, error) {
	c, ok := f.canonical[targetID]
	if !ok {
		return Canonical{}, apperror.New(apperror.NotFound, "fake.get_canonical", nil)
	}
	return c, nil
}

func (f *fakeRecordStore) UpsertCanonical(_ context.Context, c Canonical) error {
	f.upserted = &c
	return nil
}

func (f *fakeRecordStore) TouchReconciled(_ context.Context, _ uuid.UUID, at time.Time) error {
	f.touched = true
	f.touchedAt = at
	return nil
}

func (f *fakeRecordStore) ListTargetsNeedingReconcile(_ context.Context, _ int) ([]uuid.UUID, error) {
	return f.needing, nil
}

type fakeTargetLoader struct {
	t     target.CheckTarget
	calls int
}

func (f *fakeTargetLoader) GetByID(_ context.Context, _ uuid.UUID) (target.CheckTarget, error) {
	f.calls++
	return f.t, nil
}

type fakeStatusCache struct {
	sets int
}

func (f *fakeStatusCache) SetCanonicalStatus(_ context.Context, _, _ string, _ time.Time) error {
	f.sets++
	return nil
}

func newTestReconciler(records *fakeRecordStore, targets *fakeTargetLoader, cache *fakeStatusCache) (*Reconciler, chan notify.TransitionEvent) {
	log := zerolog.Nop()
	transitions := make(chan notify.TransitionEvent, 10)
	return NewReconciler(context.Background(), time.Second, records, targets, cache, transitions, &log), transitions
}

func TestReconcileFirstObservation(t *testing.T) {
	targetID := uuid.New()
	tgt := target.CheckTarget{ID: targetID, Regions: []string{"us-east"}, PublicToken: uuid.New()}

	records := &fakeRecordStore{
		latest:    []Record{{Region: "us-east", Status: StatusDown}},
		canonical: map[uuid.UUID]Canonical{},
	}
	cache := &fakeStatusCache{}

	r, _ := newTestReconciler(records, &fakeTargetLoader{t: tgt}, cache)

	changed, prev, cur, err := r.Reconcile(context.Background(), targetID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !changed {
		t.Fatal("first observation should change canonical status")
	}
	if prev != "" || cur != StatusDown {
		t.Fatalf("transition = %q -> %q, want \"\" -> down", prev, cur)
	}
	if records.upserted == nil {
		t.Fatal("canonical row was not written")
	}
	if cache.sets != 1 {
		t.Fatalf("cache writes = %d, want 1", cache.sets)
	}
}

func TestReconcileUnchangedOnlyTouchesBookmark(t *testing.T) {
	targetID := uuid.New()
	tgt := target.CheckTarget{ID: targetID, Regions: []string{"us-east"}, PublicToken: uuid.New()}

	lastChange := time.Now().Add(-time.Hour)
	records := &fakeRecordStore{
		latest: []Record{{Region: "us-east", Status: StatusUp}},
		canonical: map[uuid.UUID]Canonical{
			targetID: {TargetID: targetID, Status: StatusUp, LastChangedAt: lastChange},
		},
	}
	cache := &fakeStatusCache{}

	r, _ := newTestReconciler(records, &fakeTargetLoader{t: tgt}, cache)

	changed, _, _, err := r.Reconcile(context.Background(), targetID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if changed {
		t.Fatal("unchanged status reported as changed")
	}
	if !records.touched {
		t.Fatal("reconciliation bookmark was not advanced")
	}
	if records.upserted != nil {
		t.Fatal("canonical row rewritten without a real change")
	}
	if cache.sets != 0 {
		t.Fatal("cache refreshed without a real change")
	}
}

func TestReconcileNoObservations(t *testing.T) {
	targetID := uuid.New()
	tgt := target.CheckTarget{ID: targetID, Regions: []string{"us-east"}}

	records := &fakeRecordStore{canonical: map[uuid.UUID]Canonical{}}
	r, _ := newTestReconciler(records, &fakeTargetLoader{t: tgt}, &fakeStatusCache{})

	changed, _, _, err := r.Reconcile(context.Background(), targetID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if changed {
		t.Fatal("no observations must never change canonical status")
	}
	if records.touched || records.upserted != nil {
		t.Fatal("store written despite no observations")
	}
}

func TestReconcileRepeatedRunsConverge(t *testing.T) {
	targetID := uuid.New()
	tgt := target.CheckTarget{ID: targetID, Regions: []string{"a", "b"}, PublicToken: uuid.New()}

	records := &fakeRecordStore{
		latest: []Record{
			{Region: "a", Status: StatusDown},
			{Region: "b", Status: StatusDown},
		},
		canonical: map[uuid.UUID]Canonical{},
	}
	r, _ := newTestReconciler(records, &fakeTargetLoader{t: tgt}, &fakeStatusCache{})

	changed, _, cur, err := r.Reconcile(context.Background(), targetID)
	if err != nil || !changed || cur != StatusDown {
		t.Fatalf("first run: changed=%v cur=%s err=%v", changed, cur, err)
	}

	// second run over the same observations is a no-op
	records.canonical[targetID] = *records.upserted
	records.upserted = nil

	changed, _, _, err = r.Reconcile(context.Background(), targetID)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if changed || records.upserted != nil {
		t.Fatal("second run over identical observations changed state")
	}
}

func TestReconcileBookmarkIsNewestObservation(t *testing.T) {
	targetID := uuid.New()
	tgt := target.CheckTarget{ID: targetID, Regions: []string{"a", "b"}, PublicToken: uuid.New()}

	older := time.Now().Add(-2 * time.Minute)
	newest := time.Now().Add(-30 * time.Second)

	records := &fakeRecordStore{
		latest: []Record{
			{Region: "a", Status: StatusUp, ObservedAt: older},
			{Region: "b", Status: StatusUp, ObservedAt: newest},
		},
		canonical: map[uuid.UUID]Canonical{
			targetID: {TargetID: targetID, Status: StatusUp},
		},
	}
	r, _ := newTestReconciler(records, &fakeTargetLoader{t: tgt}, &fakeStatusCache{})

	// unchanged run: the bookmark is the newest folded observation, so a
	// record arriving mid-reconcile still compares newer and gets picked up
	if _, _, _, err := r.Reconcile(context.Background(), targetID); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !records.touchedAt.Equal(newest) {
		t.Fatalf("bookmark = %v, want newest observation %v", records.touchedAt, newest)
	}

	// changed run: the canonical row carries the same bookmark semantics
	records.latest[0].Status = StatusDown
	records.latest[1].Status = StatusDown
	if _, _, _, err := r.Reconcile(context.Background(), targetID); err != nil {
		t.Fatalf("Reconcile after change: %v", err)
	}
	if records.upserted == nil || !records.upserted.ReconciledAt.Equal(newest) {
		t.Fatalf("upserted bookmark = %v, want %v", records.upserted, newest)
	}
}

func TestDoWorkEmitsTransitionForChangedTarget(t *testing.T) {
	targetID := uuid.New()
	tgt := target.CheckTarget{
		ID:          targetID,
		OwnerID:     uuid.New(),
		URL:         "https://example.com",
		Regions:     []string{"us-east"},
		PublicToken: uuid.New(),
	}

	records := &fakeRecordStore{
		latest:    []Record{{Region: "us-east", Status: StatusDown, ObservedAt: time.Now()}},
		canonical: map[uuid.UUID]Canonical{},
		needing:   []uuid.UUID{targetID},
	}
	loader := &fakeTargetLoader{t: tgt}
	r, transitions := newTestReconciler(records, loader, &fakeStatusCache{})

	r.doWork()

	select {
	case ev := <-transitions:
		if ev.TargetID != targetID || ev.OwnerID != tgt.OwnerID || ev.TargetURL != tgt.URL {
			t.Fatalf("event = %+v, want the loaded target's identity", ev)
		}
		if ev.FromStatus != "" || ev.ToStatus != "down" {
			t.Fatalf("transition = %q -> %q, want \"\" -> down", ev.FromStatus, ev.ToStatus)
		}
	default:
		t.Fatal("no transition event emitted")
	}

	if loader.calls != 1 {
		t.Fatalf("target loaded %d times during the pass, want 1", loader.calls)
	}
}
