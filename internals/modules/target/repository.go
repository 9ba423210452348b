package target

import (
	"context"

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

func (r *Repository) Create(ctx context.Context, cmd CreateTargetCmd, publicToken uuid.UUID) (uuid.UUID, error) {
	const op string = "repo.target.create"

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO check_targets (owner_id, url, interval_sec, regions, enabled, public_token)
		VALUES ($1, $2, $3, $4, true, $5)
		RETURNING id`,
		cmd.OwnerID, cmd.URL, cmd.IntervalSec, cmd.Regions, publicToken,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, utils.WrapRepoError(op, err, false, r.logger)
	}
	return id, nil
}

func (r *Repository) GetByID(ctx context.Context, targetID uuid.UUID) (CheckTarget, error) {
	const op string = "repo.target.get_by_id"

	row := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, url, interval_sec, regions, enabled, public_token, created_at
		FROM check_targets
		WHERE id = $1`,
		targetID,
	)
	return r.scanTarget(op, row)
}

func (r *Repository) GetByPublicToken(ctx context.Context, publicToken uuid.UUID) (CheckTarget, error) {
	const op string = "repo.target.get_by_public_token"

	row := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, url, interval_sec, regions, enabled, public_token, created_at
		FROM check_targets
		WHERE public_token = $1`,
		publicToken,
	)
	return r.scanTarget(op, row)
}

func (r *Repository) GetAll(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]CheckTarget, error) {
	const op string = "repo.target.get_all"

	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, url, interval_sec, regions, enabled, public_token, created_at
		FROM check_targets
		WHERE owner_id = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, utils.WrapRepoError(op, err, false, r.logger)
	}
	defer rows.Close()

	var targets []CheckTarget
	for rows.Next() {
		t, err := r.scanTarget(op, rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.WrapRepoError(op, err, false, r.logger)
	}
	return targets, nil
}

// SetEnabled flips the enabled flag for an owner's target. Returns false when
// no row matched the (owner, target) pair.
func (r *Repository) SetEnabled(ctx context.Context, ownerID, targetID uuid.UUID, enabled bool) (bool, error) {
	const op string = "repo.target.set_enabled"

	tag, err := r.pool.Exec(ctx, `
		UPDATE check_targets
		SET enabled = $3
		WHERE id = $1 AND owner_id = $2`,
		targetID, ownerID, enabled,
	)
	if err != nil {
		return false, utils.WrapRepoError(op, err, false, r.logger)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) scanTarget(op string, row pgx.Row) (CheckTarget, error) {
	var t CheckTarget
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.URL, &t.IntervalSec,
		&t.Regions, &t.Enabled, &t.PublicToken, &t.CreatedAt,
	)
	if err != nil {
		return CheckTarget{}, utils.WrapRepoError(op, err, true, r.logger)
	}
	return t, nil
}
