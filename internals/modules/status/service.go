package status

import (
	"context"
	"strconv"
	"time"

	"pulsewatch/internals/modules/target"
	"pulsewatch/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type PublicStatus struct {
	Status        Status
	LastChangedAt time.Time
}

type TokenLookup interface {
	GetByPublicToken(ctx context.Context, publicToken uuid.UUID) (target.CheckTarget, error)
}

type PublicStatusCache interface {
	GetCanonicalStatus(ctx context.Context, publicToken string) (map[string]string, error)
	SetCanonicalStatus(ctx context.Context, publicToken, status string, lastChangedAt time.Time) error
}

// PublicService serves the status page read path: redis first, Postgres as
// fallback. A known token always gets an answer — the last reconciled status,
// or unknown when the target has never been reconciled.
type PublicService struct {
	targets TokenLookup
	records RecordStore
	cache   PublicStatusCache
	logger  *zerolog.Logger
}

func NewPublicService(targets TokenLookup, records RecordStore, cache PublicStatusCache, logger *zerolog.Logger) *PublicService {
	return &PublicService{
		targets: targets,
		records: records,
		cache:   cache,
		logger:  logger,
	}
}

func (s *PublicService) GetByToken(ctx context.Context, publicToken uuid.UUID) (PublicStatus, error) {
	cached, err := s.cache.GetCanonicalStatus(ctx, publicToken.String())
	if err != nil {
		// cache trouble must not take the page down
		s.logger.Error().Err(err).Msg("status cache read failed")
	}
	if st, ok := fromCacheEntry(cached); ok {
		return st, nil
	}

	t, err := s.targets.GetByPublicToken(ctx, publicToken)
	if err != nil {
		return PublicStatus{}, err
	}

	c, err := s.records.GetCanonical(ctx, t.ID)
	if apperror.IsKind(err, apperror.NotFound) {
		return PublicStatus{Status: StatusUnknown}, nil
	}
	if err != nil {
		return PublicStatus{}, err
	}

	if err := s.cache.SetCanonicalStatus(ctx, publicToken.String(), string(c.Status), c.LastChangedAt); err != nil {
		s.logger.Error().Err(err).Msg("status cache refill failed")
	}

	return PublicStatus{Status: c.Status, LastChangedAt: c.LastChangedAt}, nil
}

func fromCacheEntry(entry map[string]string) (PublicStatus, bool) {
	if len(entry) == 0 {
		return PublicStatus{}, false
	}
	st, ok := ParseStatus(entry["status"])
	if !ok {
		return PublicStatus{}, false
	}
	unix, err := strconv.ParseInt(entry["last_changed_at"], 10, 64)
	if err != nil {
		return PublicStatus{}, false
	}
	return PublicStatus{Status: st, LastChangedAt: time.Unix(unix, 0)}, true
}
