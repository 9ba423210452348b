package notify

import (
	"context"
	"time"

	"pulsewatch/pkg/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type ChannelRepository struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

func NewChannelRepository(pool *pgxpool.Pool, logger *zerolog.Logger) *ChannelRepository {
	return &ChannelRepository{pool: pool, logger: logger}
}

func (r *ChannelRepository) Create(ctx context.Context, ownerID uuid.UUID, kind ChannelKind, address string) (uuid.UUID, error) {
	const op string = "repo.channel.create"

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notification_channels (owner_id, kind, address, state)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		ownerID, kind, address, ChannelUnverified,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, utils.WrapRepoError(op, err, false, r.logger)
	}
	return id, nil
}

func (r *ChannelRepository) GetByID(ctx context.Context, channelID uuid.UUID) (Channel, error) {
	const op string = "repo.channel.get_by_id"

	row := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, kind, address, state, created_at
		FROM notification_channels
		WHERE id = $1`,
		channelID,
	)
	return scanChannel(op, row, r.logger)
}

func (r *ChannelRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Channel, error) {
	const op string = "repo.channel.list_by_owner"
	return r.list(ctx, op, `
		SELECT id, owner_id, kind, address, state, created_at
		FROM notification_channels
		WHERE owner_id = $1
		ORDER BY created_at`,
		ownerID,
	)
}

func (r *ChannelRepository) ListVerifiedByOwner(ctx context.Context, ownerID uuid.UUID) ([]Channel, error) {
	const op string = "repo.channel.list_verified_by_owner"
	return r.list(ctx, op, `
		SELECT id, owner_id, kind, address, state, created_at
		FROM notification_channels
		WHERE owner_id = $1 AND state = 'verified'
		ORDER BY created_at`,
		ownerID,
	)
}

func (r *ChannelRepository) SetState(ctx context.Context, channelID uuid.UUID, state ChannelState) error {
	const op string = "repo.channel.set_state"

	_, err := r.pool.Exec(ctx, `
		UPDATE notification_channels
		SET state = $2
		WHERE id = $1`,
		channelID, state,
	)
	if err != nil {
		return utils.WrapRepoError(op, err, false, r.logger)
	}
	return nil
}

func (r *ChannelRepository) list(ctx context.Context, op, query string, args ...any) ([]Channel, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, utils.WrapRepoError(op, err, false, r.logger)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		ch, err := scanChannel(op, rows, r.logger)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.WrapRepoError(op, err, false, r.logger)
	}
	return channels, nil
}

func scanChannel(op string, row pgx.Row, logger *zerolog.Logger) (Channel, error) {
	var ch Channel
	err := row.Scan(&ch.ID, &ch.OwnerID, &ch.Kind, &ch.Address, &ch.State, &ch.CreatedAt)
	if err != nil {
		return Channel{}, utils.WrapRepoError(op, err, true, logger)
	}
	return ch, nil
}

type EventRepository struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

func NewEventRepository(pool *pgxpool.Pool, logger *zerolog.Logger) *EventRepository {
	return &EventRepository{pool: pool, logger: logger}
}

func (r *EventRepository) Create(ctx context.Context, ev NotificationEvent) (uuid.UUID, error) {
	const op string = "repo.notification_event.create"

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notification_events
			(target_id, channel_id, from_status, to_status, state, attempts, suppress_reason, message, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		ev.TargetID, ev.ChannelID, ev.FromStatus, ev.ToStatus,
		ev.State, ev.Attempts, ev.SuppressReason, ev.Message, ev.SentAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, utils.WrapRepoError(op, err, false, r.logger)
	}
	return id, nil
}

// SentWithin reports whether a non-suppressed event for the same target and
// transition direction exists inside the window. This is the authoritative
// dedup check behind the redis fast path.
func (r *EventRepository) SentWithin(ctx context.Context, targetID uuid.UUID, toStatus string, since time.Time) (bool, error) {
	const op string = "repo.notification_event.sent_within"

	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notification_events
			WHERE target_id = $1
			  AND to_status = $2
			  AND state <> 'suppressed'
			  AND created_at >= $3
		)`,
		targetID, toStatus, since,
	).Scan(&exists)
	if err != nil {
		return false, utils.WrapRepoError(op, err, false, r.logger)
	}
	return exists, nil
}

// ListRetryable returns failed events still inside their attempt budget,
// oldest first.
func (r *EventRepository) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]NotificationEvent, error) {
	const op string = "repo.notification_event.list_retryable"

	rows, err := r.pool.Query(ctx, `
		SELECT id, target_id, channel_id, from_status, to_status, state, attempts, suppress_reason, message, created_at, sent_at
		FROM notification_events
		WHERE state = 'failed' AND attempts < $1
		ORDER BY created_at
		LIMIT $2`,
		maxAttempts, limit,
	)
	if err != nil {
		return nil, utils.WrapRepoError(op, err, false, r.logger)
	}
	defer rows.Close()

	var events []NotificationEvent
	for rows.Next() {
		var ev NotificationEvent
		if err := rows.Scan(
			&ev.ID, &ev.TargetID, &ev.ChannelID, &ev.FromStatus, &ev.ToStatus,
			&ev.State, &ev.Attempts, &ev.SuppressReason, &ev.Message, &ev.CreatedAt, &ev.SentAt,
		); err != nil {
			return nil, utils.WrapRepoError(op, err, false, r.logger)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.WrapRepoError(op, err, false, r.logger)
	}
	return events, nil
}

func (r *EventRepository) MarkSent(ctx context.Context, eventID uuid.UUID, attempts int, sentAt time.Time) error {
	const op string = "repo.notification_event.mark_sent"

	_, err := r.pool.Exec(ctx, `
		UPDATE notification_events
		SET state = 'sent', attempts = $2, sent_at = $3
		WHERE id = $1`,
		eventID, attempts, sentAt,
	)
	if err != nil {
		return utils.WrapRepoError(op, err, false, r.logger)
	}
	return nil
}

func (r *EventRepository) MarkFailed(ctx context.Context, eventID uuid.UUID, attempts int, permanent bool) error {
	const op string = "repo.notification_event.mark_failed"

	state := EventFailed
	if permanent {
		state = EventPermanentlyFailed
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE notification_events
		SET state = $2, attempts = $3
		WHERE id = $1`,
		eventID, state, attempts,
	)
	if err != nil {
		return utils.WrapRepoError(op, err, false, r.logger)
	}
	return nil
}
