package ingest

import (
	"context"

	"pulsewatch/internals/modules/dispatch"
	"pulsewatch/internals/modules/status"
	"pulsewatch/pkg/utils"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Repository owns the consume transaction: status insert and pending delete
// commit together or not at all.
type Repository struct {
	pool    *pgxpool.Pool
	records *status.Repository
	logger  *zerolog.Logger
}

func NewRepository(pool *pgxpool.Pool, records *status.Repository, logger *zerolog.Logger) *Repository {
	return &Repository{
		pool:    pool,
		records: records,
		logger:  logger,
	}
}

// Consume converts one pending request into a status record and deletes the
// pending row, atomically. If the row is already gone (a concurrent consumer
// won) the transaction rolls back and no duplicate record is written.
func (r *Repository) Consume(ctx context.Context, req dispatch.PendingCheckRequest, rec status.Record) error {
	const op string = "repo.ingest.consume"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return utils.WrapRepoError(op, err, false, r.logger)
	}
	defer tx.Rollback(ctx)

	if err := r.records.InsertRecordTx(ctx, tx, rec); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM pending_check_requests
		WHERE id = $1`,
		req.ID,
	)
	if err != nil {
		return utils.WrapRepoError(op, err, false, r.logger)
	}
	if tag.RowsAffected() == 0 {
		// already consumed elsewhere; the deferred rollback discards the insert
		return nil
	}

	if err := tx.Commit(ctx); err != nil {
		return utils.WrapRepoError(op, err, false, r.logger)
	}
	return nil
}
