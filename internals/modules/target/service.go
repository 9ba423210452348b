package target

import (
	"context"
	"slices"
	"time"

	"pulsewatch/pkg/apperror"

	"github.com/google/uuid"
)

// Store is the persistence surface the service needs; satisfied by
// *Repository and by in-memory fakes in tests.
type Store interface {
	Create(ctx context.Context, cmd CreateTargetCmd, publicToken uuid.UUID) (uuid.UUID, error)
	GetByID(ctx context.Context, targetID uuid.UUID) (CheckTarget, error)
	GetByPublicToken(ctx context.Context, publicToken uuid.UUID) (CheckTarget, error)
	GetAll(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]CheckTarget, error)
	SetEnabled(ctx context.Context, ownerID, targetID uuid.UUID, enabled bool) (bool, error)
}

// Cache is the redis surface: the due-dispatch schedule plus the public
// status cache entry and notification cooldown claims that must be dropped
// when a target is disabled.
type Cache interface {
	Schedule(ctx context.Context, targetID string, nextRun time.Time) error
	DelSchedule(ctx context.Context, targetID string) error
	DelCanonicalStatus(ctx context.Context, publicToken string) error
	ClearCooldown(ctx context.Context, targetID uuid.UUID, direction string) error
}

type Service struct {
	repo            Store
	cache           Cache
	intervalAllowed func(int32) bool
	knownRegions    []string
}

func NewService(repo Store, cache Cache, intervalAllowed func(int32) bool, knownRegions []string) *Service {
	return &Service{
		repo:            repo,
		cache:           cache,
		intervalAllowed: intervalAllowed,
		knownRegions:    knownRegions,
	}
}

func (s *Service) CreateTarget(ctx context.Context, cmd CreateTargetCmd) (uuid.UUID, error) {
	const op string = "service.target.create"

	if !s.intervalAllowed(cmd.IntervalSec) {
		return uuid.Nil, apperror.New(apperror.InvalidInput, op, nil).
			WithMessage("interval is not one of the allowed choices")
	}
	if len(cmd.Regions) == 0 {
		return uuid.Nil, apperror.New(apperror.InvalidInput, op, nil).
			WithMessage("at least one region is required")
	}
	for _, region := range cmd.Regions {
		if !slices.Contains(s.knownRegions, region) {
			return uuid.Nil, apperror.New(apperror.InvalidInput, op, nil).
				WithMessage("unknown region: " + region)
		}
	}

	targetID, err := s.repo.Create(ctx, cmd, uuid.New())
	if err != nil {
		return uuid.Nil, err
	}

	// first dispatch as soon as the next tick comes around
	if err := s.cache.Schedule(ctx, targetID.String(), time.Now()); err != nil {
		return uuid.Nil, apperror.New(apperror.Dependency, op, err)
	}

	return targetID, nil
}

func (s *Service) GetTarget(ctx context.Context, ownerID, targetID uuid.UUID) (CheckTarget, error) {
	const op string = "service.target.get"

	t, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return CheckTarget{}, err
	}
	if t.OwnerID != ownerID {
		return CheckTarget{}, apperror.New(apperror.Forbidden, op, nil).
			WithMessage("target belongs to another owner")
	}
	return t, nil
}

func (s *Service) GetAllTargets(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]CheckTarget, error) {
	return s.repo.GetAll(ctx, ownerID, limit, offset)
}

// SetEnabled enables or disables a target. Enabling re-enters it into the
// dispatch schedule; disabling clears the schedule entry and the public
// status cache so the page stops advancing, while history stays in place.
func (s *Service) SetEnabled(ctx context.Context, ownerID, targetID uuid.UUID, enable bool) error {
	const op string = "service.target.set_enabled"

	t, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if t.OwnerID != ownerID {
		return apperror.New(apperror.Forbidden, op, nil).
			WithMessage("target belongs to another owner")
	}
	if t.Enabled == enable {
		return apperror.New(apperror.Conflict, op, nil).
			WithMessage("target is already in the requested state")
	}

	if _, err := s.repo.SetEnabled(ctx, ownerID, targetID, enable); err != nil {
		return err
	}

	if enable {
		nextRun := time.Now().Add(time.Duration(t.IntervalSec) * time.Second)
		if err := s.cache.Schedule(ctx, targetID.String(), nextRun); err != nil {
			return apperror.New(apperror.Dependency, op, err)
		}
		return nil
	}

	_ = s.cache.DelSchedule(ctx, targetID.String())
	_ = s.cache.DelCanonicalStatus(ctx, t.PublicToken.String())
	// drop live cooldown claims so a later re-enable notifies immediately
	for _, direction := range []string{"up", "down", "degraded"} {
		_ = s.cache.ClearCooldown(ctx, targetID, direction)
	}
	return nil
}
