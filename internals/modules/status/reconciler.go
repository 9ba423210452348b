package status

import (
	"context"
	"time"

	"pulsewatch/internals/modules/notify"
	"pulsewatch/internals/modules/target"
	"pulsewatch/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type RecordStore interface {
	LatestPerRegion(ctx context.Context, targetID uuid.UUID) ([]Record, error)
	GetCanonical(ctx context.Context, targetID uuid.UUID) (Canonical, error)
	UpsertCanonical(ctx context.Context, c Canonical) error
	TouchReconciled(ctx context.Context, targetID uuid.UUID, at time.Time) error
	ListTargetsNeedingReconcile(ctx context.Context, limit int) ([]uuid.UUID, error)
}

type TargetLoader interface {
	GetByID(ctx context.Context, targetID uuid.UUID) (target.CheckTarget, error)
}

type StatusCache interface {
	SetCanonicalStatus(ctx context.Context, publicToken, status string, lastChangedAt time.Time) error
}

const reconcileBatchSize = 500

// Reconciler folds the latest per-region observations of each target into one
// canonical status and reports transitions to the notifier.
type Reconciler struct {
	ctx      context.Context
	interval time.Duration

	records RecordStore
	targets TargetLoader
	cache   StatusCache

	transitions chan<- notify.TransitionEvent

	logger *zerolog.Logger
}

func NewReconciler(
	ctx context.Context,
	interval time.Duration,
	records RecordStore,
	targets TargetLoader,
	cache StatusCache,
	transitions chan<- notify.TransitionEvent,
	logger *zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		ctx:         ctx,
		interval:    interval,
		records:     records,
		targets:     targets,
		cache:       cache,
		transitions: transitions,
		logger:      logger,
	}
}

func (r *Reconciler) Run() {
	if r.interval <= 0 {
		panic("reconciler interval must be > 0")
	}
	r.logger.Info().Msg("reconciler started")
	ticker := time.NewTicker(r.interval)
	defer func() {
		ticker.Stop()
		// the reconciler is the only sender on the transition channel, so it
		// closes it; notifier workers drain what is buffered and exit
		close(r.transitions)
		r.logger.Info().Msg("reconciler stopped")
	}()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.doWork()
		}
	}
}

func (r *Reconciler) doWork() {
	ids, err := r.records.ListTargetsNeedingReconcile(r.ctx, reconcileBatchSize)
	if err != nil {
		// store failure aborts the tick; next cadence retries
		r.logger.Error().Err(err).Msg("failed to list targets needing reconciliation")
		return
	}

	for _, targetID := range ids {
		t, err := r.targets.GetByID(r.ctx, targetID)
		if err != nil {
			r.logger.Error().Err(err).Stringer("target_id", targetID).Msg("failed to load target for reconciliation")
			continue
		}

		changed, prev, cur, err := r.reconcileTarget(r.ctx, t)
		if err != nil {
			r.logger.Error().Err(err).Stringer("target_id", targetID).Msg("reconcile failed")
			continue
		}
		if !changed {
			continue
		}

		r.logger.Info().
			Stringer("target_id", targetID).
			Str("previous", string(prev)).
			Str("current", string(cur)).
			Msg("canonical status changed")

		r.afterChange(t, prev, cur)
	}
}

// Reconcile recomputes the canonical status of one target. changed is true
// only when the derived status differs from the stored canonical value; a run
// with no new information updates nothing but the reconciliation bookmark.
func (r *Reconciler) Reconcile(ctx context.Context, targetID uuid.UUID) (changed bool, previous, current Status, err error) {
	t, err := r.targets.GetByID(ctx, targetID)
	if err != nil {
		return false, "", "", err
	}
	return r.reconcileTarget(ctx, t)
}

func (r *Reconciler) reconcileTarget(ctx context.Context, t target.CheckTarget) (changed bool, previous, current Status, err error) {
	latest, err := r.records.LatestPerRegion(ctx, t.ID)
	if err != nil {
		return false, "", "", err
	}

	current, ok := Derive(latest, t.Regions)
	if !ok {
		// no observations from any assigned region yet
		return false, "", "", nil
	}

	// the bookmark carries the newest observation actually folded in, not the
	// wall clock: a record landing mid-reconcile stays newer than the bookmark
	// and gets picked up next tick
	var reconciledThrough time.Time
	for _, rec := range latest {
		if rec.ObservedAt.After(reconciledThrough) {
			reconciledThrough = rec.ObservedAt
		}
	}

	prev, err := r.records.GetCanonical(ctx, t.ID)
	switch {
	case err == nil:
		previous = prev.Status
	case apperror.IsKind(err, apperror.NotFound):
		previous = ""
	default:
		return false, "", "", err
	}

	if current == previous {
		if err := r.records.TouchReconciled(ctx, t.ID, reconciledThrough); err != nil {
			return false, previous, current, err
		}
		return false, previous, current, nil
	}

	regionStatuses := make(map[string]Status, len(latest))
	for _, rec := range latest {
		regionStatuses[rec.Region] = rec.Status
	}

	now := time.Now()

	if err := r.records.UpsertCanonical(ctx, Canonical{
		TargetID:       t.ID,
		Status:         current,
		LastChangedAt:  now,
		ReconciledAt:   reconciledThrough,
		RegionStatuses: regionStatuses,
	}); err != nil {
		return false, previous, current, err
	}

	if err := r.cache.SetCanonicalStatus(ctx, t.PublicToken.String(), string(current), now); err != nil {
		r.logger.Error().Err(err).Stringer("target_id", t.ID).Msg("failed to refresh status cache")
	}

	return true, previous, current, nil
}

func (r *Reconciler) afterChange(t target.CheckTarget, prev, cur Status) {
	// a brand-new target coming up for the first time is not a transition
	// worth waking anyone for
	if prev == "" && cur == StatusUp {
		return
	}

	select {
	case r.transitions <- notify.TransitionEvent{
		TargetID:   t.ID,
		OwnerID:    t.OwnerID,
		TargetURL:  t.URL,
		FromStatus: string(prev),
		ToStatus:   string(cur),
		OccurredAt: time.Now(),
	}:
	case <-r.ctx.Done():
	}
}

// Derive folds the latest per-region records into one status. Only assigned
// regions count. All reporting regions up means up; down wins only with a
// strict majority of reporting regions; anything else is degraded, since
// under disagreement we never report up.
func Derive(latest []Record, assignedRegions []string) (Status, bool) {
	assigned := make(map[string]bool, len(assignedRegions))
	for _, region := range assignedRegions {
		assigned[region] = true
	}

	var observed, upCount, downCount int
	for _, rec := range latest {
		if !assigned[rec.Region] {
			continue
		}
		observed++
		switch rec.Status {
		case StatusUp:
			upCount++
		case StatusDown:
			downCount++
		}
	}

	if observed == 0 {
		return "", false
	}
	if upCount == observed {
		return StatusUp, true
	}
	if downCount*2 > observed {
		return StatusDown, true
	}
	return StatusDegraded, true
}
