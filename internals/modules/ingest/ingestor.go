package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pulsewatch/internals/modules/dispatch"
	"pulsewatch/internals/modules/status"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type PendingStore interface {
	ListAnswered(ctx context.Context, limit int) ([]dispatch.PendingCheckRequest, error)
	MarkDecodeFailed(ctx context.Context, requestID uuid.UUID, at time.Time) error
}

// ConsumeStore converts one answered request into a status record atomically.
type ConsumeStore interface {
	Consume(ctx context.Context, req dispatch.PendingCheckRequest, rec status.Record) error
}

// Ingestor drains answered pending requests on a bounded worker pool. One bad
// payload never aborts the batch: the request is quarantined for inspection
// and the rest keep flowing.
type Ingestor struct {
	ctx        context.Context
	interval   time.Duration
	workerPool int
	batchSize  int

	pending PendingStore
	store   ConsumeStore

	logger *zerolog.Logger
}

func NewIngestor(
	ctx context.Context,
	interval time.Duration,
	workerPool int,
	batchSize int,
	pending PendingStore,
	store ConsumeStore,
	logger *zerolog.Logger,
) *Ingestor {
	return &Ingestor{
		ctx:        ctx,
		interval:   interval,
		workerPool: workerPool,
		batchSize:  batchSize,
		pending:    pending,
		store:      store,
		logger:     logger,
	}
}

func (in *Ingestor) Run() {
	if in.interval <= 0 {
		panic("ingestor interval must be > 0")
	}
	in.logger.Info().Msg("ingestor started")
	ticker := time.NewTicker(in.interval)
	defer func() {
		ticker.Stop()
		in.logger.Info().Msg("ingestor stopped")
	}()

	for {
		select {
		case <-in.ctx.Done():
			return
		case <-ticker.C:
			created, skipped, err := in.IngestPending(in.ctx)
			if err != nil {
				in.logger.Error().Err(err).Msg("ingest tick failed")
				continue
			}
			if created > 0 || skipped > 0 {
				in.logger.Info().
					Int("created", created).
					Int("skipped_malformed", skipped).
					Msg("ingest tick complete")
			}
		}
	}
}

// IngestPending consumes every answered pending request currently visible.
// Safe to re-run after a partial failure: unconverted requests are still
// pending and simply picked up again.
func (in *Ingestor) IngestPending(ctx context.Context) (created, skippedMalformed int, err error) {
	reqs, err := in.pending.ListAnswered(ctx, in.batchSize)
	if err != nil {
		return 0, 0, err
	}
	if len(reqs) == 0 {
		return 0, 0, nil
	}

	var createdN, skippedN atomic.Int64

	jobs := make(chan dispatch.PendingCheckRequest)
	var wg sync.WaitGroup

	wg.Add(in.workerPool)
	for i := 0; i < in.workerPool; i++ {
		go func() {
			defer wg.Done()
			for req := range jobs {
				switch in.consumeOne(ctx, req) {
				case consumeCreated:
					createdN.Add(1)
				case consumeMalformed:
					skippedN.Add(1)
				}
			}
		}()
	}

	for _, req := range reqs {
		select {
		case jobs <- req:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return int(createdN.Load()), int(skippedN.Load()), ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	return int(createdN.Load()), int(skippedN.Load()), nil
}

type consumeOutcome int

const (
	consumeCreated consumeOutcome = iota
	consumeMalformed
	consumeErrored
)

func (in *Ingestor) consumeOne(ctx context.Context, req dispatch.PendingCheckRequest) consumeOutcome {
	raw := ""
	if req.Answered() {
		raw = *req.RawResponse
	}

	rep, err := DecodeWorkerReport(raw)
	if err != nil {
		// quarantine the request so its payload survives for inspection
		// without being re-read on every ingest pass; log the whole thing,
		// it is the only evidence
		in.logger.Warn().
			Stringer("request_id", req.ID).
			Stringer("target_id", req.TargetID).
			Str("region", req.Region).
			Str("raw_payload", raw).
			Msg("malformed worker payload, request quarantined")
		if markErr := in.pending.MarkDecodeFailed(ctx, req.ID, time.Now()); markErr != nil {
			in.logger.Error().Err(markErr).
				Stringer("request_id", req.ID).
				Msg("failed to quarantine malformed request")
		}
		return consumeMalformed
	}

	observedAt := req.DispatchedAt
	if req.AnsweredAt != nil {
		observedAt = *req.AnsweredAt
	}

	rec := status.Record{
		TargetID:   req.TargetID,
		Region:     req.Region,
		Status:     rep.DeriveStatus(),
		LatencyMS:  rep.LatencyMS,
		ObservedAt: observedAt,
	}
	if rep.StatusCode != 0 {
		code := rep.StatusCode
		rec.HTTPStatus = &code
	}

	if err := in.store.Consume(ctx, req, rec); err != nil {
		in.logger.Error().Err(err).
			Stringer("request_id", req.ID).
			Msg("failed to consume pending request")
		return consumeErrored
	}
	return consumeCreated
}
