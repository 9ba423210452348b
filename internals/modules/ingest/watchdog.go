package ingest

import (
	"context"
	"time"

	"pulsewatch/internals/modules/dispatch"
	"pulsewatch/internals/modules/status"

	"github.com/rs/zerolog"
)

type StalePendingStore interface {
	ListUnansweredBefore(ctx context.Context, cutoff time.Time, limit int) ([]dispatch.PendingCheckRequest, error)
}

// Watchdog sweeps requests that never got an answer. After the cutoff age a
// missing response is treated as an observation of its own: a synthetic down
// record, consumed through the same atomic path so the pending row cannot
// pile up or be converted twice.
type Watchdog struct {
	ctx       context.Context
	interval  time.Duration
	cutoffAge time.Duration
	batchSize int

	pending StalePendingStore
	store   ConsumeStore

	logger *zerolog.Logger
}

func NewWatchdog(
	ctx context.Context,
	interval time.Duration,
	cutoffAge time.Duration,
	batchSize int,
	pending StalePendingStore,
	store ConsumeStore,
	logger *zerolog.Logger,
) *Watchdog {
	return &Watchdog{
		ctx:       ctx,
		interval:  interval,
		cutoffAge: cutoffAge,
		batchSize: batchSize,
		pending:   pending,
		store:     store,
		logger:    logger,
	}
}

func (w *Watchdog) Run() {
	if w.interval <= 0 {
		panic("watchdog interval must be > 0")
	}
	w.logger.Info().Msg("watchdog started")
	ticker := time.NewTicker(w.interval)
	defer func() {
		ticker.Stop()
		w.logger.Info().Msg("watchdog stopped")
	}()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			count, err := w.SweepStale(w.ctx, time.Now())
			if err != nil {
				w.logger.Error().Err(err).Msg("watchdog tick failed")
				continue
			}
			if count > 0 {
				w.logger.Warn().Int("synthesized", count).Msg("synthesized down records for unanswered checks")
			}
		}
	}
}

// SweepStale converts every request unanswered past the cutoff into a
// synthetic down record. Returns how many were converted.
func (w *Watchdog) SweepStale(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-w.cutoffAge)

	reqs, err := w.pending.ListUnansweredBefore(ctx, cutoff, w.batchSize)
	if err != nil {
		return 0, err
	}

	converted := 0
	for _, req := range reqs {
		rec := status.Record{
			TargetID:   req.TargetID,
			Region:     req.Region,
			Status:     status.StatusDown,
			ObservedAt: now,
			Synthetic:  true,
		}
		if err := w.store.Consume(ctx, req, rec); err != nil {
			w.logger.Error().Err(err).
				Stringer("request_id", req.ID).
				Msg("failed to synthesize down record")
			continue
		}
		converted++
	}

	return converted, nil
}
