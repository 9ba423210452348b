package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"pulsewatch/internals/modules/target"
	"pulsewatch/pkg/apperror"
	"pulsewatch/pkg/rabbitmq"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type TargetLoader interface {
	GetByID(ctx context.Context, targetID uuid.UUID) (target.CheckTarget, error)
}

type PendingStore interface {
	CreateIfAbsent(ctx context.Context, targetID uuid.UUID, region string, dispatchedAt time.Time, idempotencyKey string) (uuid.UUID, error)
}

// ScheduleStore is the redis due-dispatch schedule.
type ScheduleStore interface {
	PopDue(ctx context.Context, batchCount int) ([]redis.Z, error)
	Schedule(ctx context.Context, targetID string, nextRun time.Time) error
	ScheduleBatch(ctx context.Context, items []redis.Z) error
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Dispatcher fans due targets out to their assigned regions. A region that
// still has an unanswered request for the target is skipped, so in-flight
// work per (target, region) stays bounded at one.
type Dispatcher struct {
	ctx       context.Context
	interval  time.Duration
	batchSize int

	targets   TargetLoader
	pending   PendingStore
	schedule  ScheduleStore
	publisher Publisher

	logger *zerolog.Logger
}

func NewDispatcher(
	ctx context.Context,
	interval time.Duration,
	batchSize int,
	targets TargetLoader,
	pending PendingStore,
	schedule ScheduleStore,
	publisher Publisher,
	logger *zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		ctx:       ctx,
		interval:  interval,
		batchSize: batchSize,
		targets:   targets,
		pending:   pending,
		schedule:  schedule,
		publisher: publisher,
		logger:    logger,
	}
}

func (d *Dispatcher) Run() {
	if d.interval <= 0 {
		panic("dispatcher interval must be > 0")
	}
	d.logger.Info().Msg("dispatcher started")
	ticker := time.NewTicker(d.interval)
	defer func() {
		ticker.Stop()
		d.logger.Info().Msg("dispatcher stopped")
	}()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			count, err := d.DispatchDue(d.ctx, time.Now())
			if err != nil {
				d.logger.Error().Err(err).Msg("dispatch tick failed")
				continue
			}
			if count > 0 {
				d.logger.Info().Int("dispatched", count).Msg("dispatch tick complete")
			}
		}
	}
}

// DispatchDue pops every target due at now from the schedule and creates one
// pending request per assigned region. Returns the number of requests created.
// Per-target failures are isolated; only a schedule store failure aborts the
// tick.
func (d *Dispatcher) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	const op string = "dispatcher.dispatch_due"

	items, err := d.schedule.PopDue(ctx, d.batchSize)
	if err != nil {
		return 0, apperror.New(apperror.Dependency, op, err)
	}

	dispatched := 0
	nowMilli := float64(now.UnixMilli())

	for i, item := range items {
		if item.Score > nowMilli {
			// not due yet; put this and everything after it back in one call
			reinsert := make([]redis.Z, 0, len(items)-i)
			for _, future := range items[i:] {
				reinsert = append(reinsert, redis.Z{
					Score:  future.Score,
					Member: future.Member,
				})
			}
			if err := d.schedule.ScheduleBatch(ctx, reinsert); err != nil {
				d.logger.Error().Err(err).Msg("failed to reinsert future schedule entries")
			}
			break
		}

		member, _ := item.Member.(string)
		targetID, err := uuid.Parse(member)
		if err != nil {
			d.logger.Warn().Str("member", member).Msg("corrupt schedule entry, dropping")
			continue
		}

		dispatched += d.dispatchTarget(ctx, targetID, now)
	}

	return dispatched, nil
}

func (d *Dispatcher) dispatchTarget(ctx context.Context, targetID uuid.UUID, now time.Time) int {
	t, err := d.targets.GetByID(ctx, targetID)
	if err != nil {
		if apperror.IsKind(err, apperror.NotFound) {
			// deleted underneath us; let the schedule entry die
			return 0
		}
		d.logger.Error().Err(err).Stringer("target_id", targetID).Msg("failed to load target")
		// keep the target alive in the schedule so a transient store error
		// does not silently stop its checks
		_ = d.schedule.Schedule(ctx, targetID.String(), now.Add(d.interval))
		return 0
	}

	if !t.Enabled {
		return 0
	}

	created := 0
	for _, region := range t.Regions {
		key := IdempotencyKey(t.ID, region, now)

		requestID, err := d.pending.CreateIfAbsent(ctx, t.ID, region, now, key)
		if err != nil {
			d.logger.Error().Err(err).
				Stringer("target_id", t.ID).
				Str("region", region).
				Msg("failed to create pending request")
			continue
		}
		if requestID == uuid.Nil {
			// previous check still in flight; backpressure, never stack up
			d.logger.Warn().
				Stringer("target_id", t.ID).
				Str("region", region).
				Msg("check backlog: previous request still unanswered, skipping dispatch")
			continue
		}

		d.publishCheck(ctx, requestID, t, region, key)
		created++
	}

	nextRun := now.Add(time.Duration(t.IntervalSec) * time.Second)
	if err := d.schedule.Schedule(ctx, t.ID.String(), nextRun); err != nil {
		d.logger.Error().Err(err).Stringer("target_id", t.ID).Msg("failed to reschedule target")
	}

	return created
}

// publishCheck hands the request to the region's worker queue. A broker
// failure here is not fatal: the pending row exists and the watchdog will
// record the missing response as a down observation.
func (d *Dispatcher) publishCheck(ctx context.Context, requestID uuid.UUID, t target.CheckTarget, region, idempotencyKey string) {
	msg := rabbitmq.CheckRequestMessage{
		RequestID:      requestID,
		TargetID:       t.ID,
		URL:            t.URL,
		Region:         region,
		IdempotencyKey: idempotencyKey,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to marshal check request message")
		return
	}

	if err := d.publisher.Publish(ctx, rabbitmq.CheckRoutingKey(region), body); err != nil {
		d.logger.Error().Err(err).
			Stringer("request_id", requestID).
			Str("region", region).
			Msg("failed to publish check request")
	}
}
