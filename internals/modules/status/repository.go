package status

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

// InsertRecordTx writes a status record inside the caller's transaction. The
// ingestor pairs it with the pending-request delete so the consume is atomic.
func (r *Repository) InsertRecordTx(ctx context.Context, tx pgx.Tx, rec Record) error {
	const op string = "repo.status.insert_record"

	_, err := tx.Exec(ctx, `
		INSERT INTO status_records (target_id, region, status, latency_ms, http_status, observed_at, synthetic)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.TargetID, rec.Region, rec.Status, rec.LatencyMS, rec.HTTPStatus, rec.ObservedAt, rec.Synthetic,
	)
	if err != nil {
		return utils.WrapRepoError(op, err, false, r.logger)
	}
	return nil
}

// LatestPerRegion returns the most recent record for each region that has
// ever reported for the target.
func (r *Repository) LatestPerRegion(ctx context.Context, targetID uuid.UUID) ([]Record, error) {
	const op string = "repo.status.latest_per_region"

	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (region)
			id, target_id, region, status, latency_ms, http_status, observed_at, synthetic
		FROM status_records
		WHERE target_id = $1
		ORDER BY region, observed_at DESC`,
		targetID,
	)
	if err != nil {
		return nil, utils.WrapRepoError(op, err, false, r.logger)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.TargetID, &rec.Region, &rec.Status,
			&rec.LatencyMS, &rec.HTTPStatus, &rec.ObservedAt, &rec.Synthetic,
		); err != nil {
			return nil, utils.WrapRepoError(op, err, false, r.logger)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.WrapRepoError(op, err, false, r.logger)
	}
	return records, nil
}

func (r *Repository) GetCanonical(ctx context.Context, targetID uuid.UUID) (Canonical, error) {
	const op string = "repo.status.get_canonical"

	var c Canonical
	err := r.pool.QueryRow(ctx, `
		SELECT target_id, status, last_changed_at, reconciled_at, region_statuses
		FROM canonical_statuses
		WHERE target_id = $1`,
		targetID,
	).Scan(&c.TargetID, &c.Status, &c.LastChangedAt, &c.ReconciledAt, &c.RegionStatuses)
	if err != nil {
		return Canonical{}, utils.WrapRepoError(op, err, true, r.logger)
	}
	return c, nil
}

func (r *Repository) UpsertCanonical(ctx context.Context, c Canonical) error {
	const op string = "repo.status.upsert_canonical"

	_, err := r.pool.Exec(ctx, `
		INSERT INTO canonical_statuses (target_id, status, last_changed_at, reconciled_at, region_statuses)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (target_id) DO UPDATE
		SET status = EXCLUDED.status,
		    last_changed_at = EXCLUDED.last_changed_at,
		    reconciled_at = EXCLUDED.reconciled_at,
		    region_statuses = EXCLUDED.region_statuses`,
		c.TargetID, c.Status, c.LastChangedAt, c.ReconciledAt, c.RegionStatuses,
	)
	if err != nil {
		return utils.WrapRepoError(op, err, false, r.logger)
	}
	return nil
}

// TouchReconciled advances only the reconciliation bookmark; the canonical
// status and last_changed_at stay untouched when nothing changed.
func (r *Repository) TouchReconciled(ctx context.Context, targetID uuid.UUID, at time.Time) error {
	const op string = "repo.status.touch_reconciled"

	_, err := r.pool.Exec(ctx, `
		UPDATE canonical_statuses
		SET reconciled_at = $2
		WHERE target_id = $1`,
		targetID, at,
	)
	if err != nil {
		return utils.WrapRepoError(op, err, false, r.logger)
	}
	return nil
}

// ListTargetsNeedingReconcile returns targets with records newer than their
// last reconciliation (or never reconciled at all).
func (r *Repository) ListTargetsNeedingReconcile(ctx context.Context, limit int) ([]uuid.UUID, error) {
	const op string = "repo.status.list_targets_needing_reconcile"

	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT sr.target_id
		FROM status_records sr
		LEFT JOIN canonical_statuses cs ON cs.target_id = sr.target_id
		WHERE cs.target_id IS NULL OR sr.observed_at > cs.reconciled_at
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, utils.WrapRepoError(op, err, false, r.logger)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, utils.WrapRepoError(op, err, false, r.logger)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.WrapRepoError(op, err, false, r.logger)
	}
	return ids, nil
}
