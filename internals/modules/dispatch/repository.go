package dispatch

import (
	"context"
	"time"

	"pulsewatch/pkg/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type Repository struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

func NewRepository(pool *pgxpool.Pool, logger *zerolog.Logger) *Repository {
	return &Repository{
		pool:   pool,
		logger: logger,
	}
}

// CreateIfAbsent inserts a pending request unless an unanswered one already
// exists for the (target, region) pair; the partial unique index carries the
// backpressure invariant. Returns the new id, or uuid.Nil when skipped.
func (r *Repository) CreateIfAbsent(ctx context.Context, targetID uuid.UUID, region string, dispatchedAt time.Time, idempotencyKey string) (uuid.UUID, error) {
	const op string = "repo.pending.create_if_absent"

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO pending_check_requests (target_id, region, dispatched_at, idempotency_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
		RETURNING id`,
		targetID, region, dispatchedAt, idempotencyKey,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, utils.WrapRepoError(op, err, false, r.logger)
	}
	return id, nil
}

// AttachResponse fills the raw-response placeholder of an unanswered request.
// A second attach for the same request is a no-op (returns false).
func (r *Repository) AttachResponse(ctx context.Context, requestID uuid.UUID, rawResponse string, answeredAt time.Time) (bool, error) {
	const op string = "repo.pending.attach_response"

	tag, err := r.pool.Exec(ctx, `
		UPDATE pending_check_requests
		SET raw_response = $2, answered_at = $3
		WHERE id = $1 AND raw_response IS NULL`,
		requestID, rawResponse, answeredAt,
	)
	if err != nil {
		return false, utils.WrapRepoError(op, err, false, r.logger)
	}
	return tag.RowsAffected() > 0, nil
}

// ListAnswered returns requests whose response has arrived, oldest first.
// Quarantined rows (decode_failed_at set) are excluded so a backlog of junk
// payloads cannot crowd valid responses out of the batch.
func (r *Repository) ListAnswered(ctx context.Context, limit int) ([]PendingCheckRequest, error) {
	const op string = "repo.pending.list_answered"

	rows, err := r.pool.Query(ctx, `
		SELECT id, target_id, region, dispatched_at, idempotency_key, raw_response, answered_at, decode_failed_at
		FROM pending_check_requests
		WHERE raw_response IS NOT NULL AND decode_failed_at IS NULL
		ORDER BY answered_at
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, utils.WrapRepoError(op, err, false, r.logger)
	}
	defer rows.Close()

	return r.collect(op, rows)
}

// ListUnansweredBefore returns requests still waiting for a response that were
// dispatched before the cutoff; the watchdog turns these into synthetic downs.
func (r *Repository) ListUnansweredBefore(ctx context.Context, cutoff time.Time, limit int) ([]PendingCheckRequest, error) {
	const op string = "repo.pending.list_unanswered_before"

	rows, err := r.pool.Query(ctx, `
		SELECT id, target_id, region, dispatched_at, idempotency_key, raw_response, answered_at, decode_failed_at
		FROM pending_check_requests
		WHERE raw_response IS NULL AND dispatched_at < $1
		ORDER BY dispatched_at
		LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, utils.WrapRepoError(op, err, false, r.logger)
	}
	defer rows.Close()

	return r.collect(op, rows)
}

// MarkDecodeFailed quarantines an answered request whose payload could not be
// decoded. The row stays in place as evidence but leaves the ingest path.
func (r *Repository) MarkDecodeFailed(ctx context.Context, requestID uuid.UUID, at time.Time) error {
	const op string = "repo.pending.mark_decode_failed"

	_, err := r.pool.Exec(ctx, `
		UPDATE pending_check_requests
		SET decode_failed_at = $2
		WHERE id = $1`,
		requestID, at,
	)
	if err != nil {
		return utils.WrapRepoError(op, err, false, r.logger)
	}
	return nil
}

func (r *Repository) collect(op string, rows pgx.Rows) ([]PendingCheckRequest, error) {
	var reqs []PendingCheckRequest
	for rows.Next() {
		var p PendingCheckRequest
		if err := rows.Scan(
			&p.ID, &p.TargetID, &p.Region, &p.DispatchedAt,
			&p.IdempotencyKey, &p.RawResponse, &p.AnsweredAt, &p.DecodeFailedAt,
		); err != nil {
			return nil, utils.WrapRepoError(op, err, false, r.logger)
		}
		reqs = append(reqs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.WrapRepoError(op, err, false, r.logger)
	}
	return reqs, nil
}
