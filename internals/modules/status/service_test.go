package status

import (
	"context"
	"strconv"
	"testing"
	"time"

	"pulsewatch/internals/modules/target"
	"pulsewatch/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeTokenLookup struct {
	byToken map[uuid.UUID]target.CheckTarget
}

func (f *fakeTokenLookup) GetByPublicToken(_ context.Context, publicToken uuid.UUID) (target.CheckTarget, error) {
	t, ok := f.byToken[publicToken]
	if !ok {
		return target.CheckTarget{}, apperror.New(apperror.NotFound, "fake.token_lookup", nil)
	}
	return t, nil
}

type fakePublicCache struct {
	entries map[string]map[string]string
	sets    int
}

func newFakePublicCache() *fakePublicCache {
	return &fakePublicCache{entries: make(map[string]map[string]string)}
}

func (f *fakePublicCache) GetCanonicalStatus(_ context.Context, publicToken string) (map[string]string, error) {
	return f.entries[publicToken], nil
}

func (f *fakePublicCache) SetCanonicalStatus(_ context.Context, publicToken, status string, lastChangedAt time.Time) error {
	f.sets++
	f.entries[publicToken] = map[string]string{
		"status":          status,
		"last_changed_at": strconv.FormatInt(lastChangedAt.Unix(), 10),
	}
	return nil
}

func newTestPublicService(targets *fakeTokenLookup, records *fakeRecordStore, cache *fakePublicCache) *PublicService {
	log := zerolog.Nop()
	return NewPublicService(targets, records, cache, &log)
}

func TestGetByTokenCacheHit(t *testing.T) {
	token := uuid.New()
	changed := time.Now().Truncate(time.Second)

	cache := newFakePublicCache()
	_ = cache.SetCanonicalStatus(context.Background(), token.String(), "up", changed)
	cache.sets = 0

	// neither store may be consulted on a cache hit
	svc := newTestPublicService(&fakeTokenLookup{}, &fakeRecordStore{}, cache)

	st, err := svc.GetByToken(context.Background(), token)
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if st.Status != StatusUp {
		t.Fatalf("status = %s, want up", st.Status)
	}
	if !st.LastChangedAt.Equal(changed) {
		t.Fatalf("last_changed_at = %v, want %v", st.LastChangedAt, changed)
	}
	if cache.sets != 0 {
		t.Fatal("cache rewritten on a hit")
	}
}

func TestGetByTokenFallsBackToStore(t *testing.T) {
	token := uuid.New()
	tgt := target.CheckTarget{ID: uuid.New(), PublicToken: token}
	changed := time.Now().Truncate(time.Second)

	records := &fakeRecordStore{
		canonical: map[uuid.UUID]Canonical{
			tgt.ID: {TargetID: tgt.ID, Status: StatusDegraded, LastChangedAt: changed},
		},
	}
	cache := newFakePublicCache()
	svc := newTestPublicService(&fakeTokenLookup{byToken: map[uuid.UUID]target.CheckTarget{token: tgt}}, records, cache)

	st, err := svc.GetByToken(context.Background(), token)
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if st.Status != StatusDegraded {
		t.Fatalf("status = %s, want degraded", st.Status)
	}
	if cache.sets != 1 {
		t.Fatal("store answer not written back to the cache")
	}
}

func TestGetByTokenNeverReconciled(t *testing.T) {
	token := uuid.New()
	tgt := target.CheckTarget{ID: uuid.New(), PublicToken: token}

	records := &fakeRecordStore{canonical: map[uuid.UUID]Canonical{}}
	svc := newTestPublicService(&fakeTokenLookup{byToken: map[uuid.UUID]target.CheckTarget{token: tgt}}, records, newFakePublicCache())

	st, err := svc.GetByToken(context.Background(), token)
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if st.Status != StatusUnknown {
		t.Fatalf("status = %s, want unknown for a never-reconciled target", st.Status)
	}
}

func TestGetByTokenUnknownToken(t *testing.T) {
	svc := newTestPublicService(&fakeTokenLookup{}, &fakeRecordStore{}, newFakePublicCache())

	_, err := svc.GetByToken(context.Background(), uuid.New())
	if !apperror.IsKind(err, apperror.NotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}
