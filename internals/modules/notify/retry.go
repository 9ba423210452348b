package notify

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type RetryEventStore interface {
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]NotificationEvent, error)
	MarkSent(ctx context.Context, eventID uuid.UUID, attempts int, sentAt time.Time) error
	MarkFailed(ctx context.Context, eventID uuid.UUID, attempts int, permanent bool) error
}

type ChannelGetter interface {
	GetByID(ctx context.Context, channelID uuid.UUID) (Channel, error)
}

const retryBatchSize = 200

// RetryLoop redelivers failed notification events on a bounded schedule.
// Once an event burns through max attempts it is marked permanently failed
// and surfaced to the owner through the event log instead of retried forever.
type RetryLoop struct {
	ctx         context.Context
	interval    time.Duration
	maxAttempts int

	events    RetryEventStore
	channels  ChannelGetter
	providers *ProviderSet

	logger *zerolog.Logger
}

func NewRetryLoop(
	ctx context.Context,
	interval time.Duration,
	maxAttempts int,
	events RetryEventStore,
	channels ChannelGetter,
	providers *ProviderSet,
	logger *zerolog.Logger,
) *RetryLoop {
	return &RetryLoop{
		ctx:         ctx,
		interval:    interval,
		maxAttempts: maxAttempts,
		events:      events,
		channels:    channels,
		providers:   providers,
		logger:      logger,
	}
}

func (rl *RetryLoop) Run() {
	if rl.interval <= 0 {
		panic("notify retry interval must be > 0")
	}
	rl.logger.Info().Msg("notification retry loop started")
	ticker := time.NewTicker(rl.interval)
	defer func() {
		ticker.Stop()
		rl.logger.Info().Msg("notification retry loop stopped")
	}()

	for {
		select {
		case <-rl.ctx.Done():
			return
		case <-ticker.C:
			rl.RetryFailed(rl.ctx)
		}
	}
}

func (rl *RetryLoop) RetryFailed(ctx context.Context) {
	events, err := rl.events.ListRetryable(ctx, rl.maxAttempts, retryBatchSize)
	if err != nil {
		rl.logger.Error().Err(err).Msg("failed to list retryable notification events")
		return
	}

	for _, ev := range events {
		rl.retryOne(ctx, ev)
	}
}

func (rl *RetryLoop) retryOne(ctx context.Context, ev NotificationEvent) {
	attempts := ev.Attempts + 1

	ch, err := rl.channels.GetByID(ctx, ev.ChannelID)
	if err != nil {
		rl.logger.Error().Err(err).Stringer("event_id", ev.ID).Msg("failed to load channel for retry")
		return
	}
	if ch.State != ChannelVerified {
		// channel lost verification since the event was created; stop trying
		if err := rl.events.MarkFailed(ctx, ev.ID, ev.Attempts, true); err != nil {
			rl.logger.Error().Err(err).Stringer("event_id", ev.ID).Msg("failed to mark event permanently failed")
		}
		return
	}

	provider, err := rl.providers.For(ch.Kind)
	if err != nil {
		rl.logger.Error().Err(err).Stringer("event_id", ev.ID).Msg("no provider for channel kind")
		return
	}

	subject, body := splitMessage(ev.Message)

	if err := provider.Send(ctx, ch, subject, body); err != nil {
		permanent := attempts >= rl.maxAttempts
		if markErr := rl.events.MarkFailed(ctx, ev.ID, attempts, permanent); markErr != nil {
			rl.logger.Error().Err(markErr).Stringer("event_id", ev.ID).Msg("failed to record retry failure")
		}
		if permanent {
			rl.logger.Warn().
				Stringer("event_id", ev.ID).
				Int("attempts", attempts).
				Msg("notification permanently failed")
		}
		return
	}

	if err := rl.events.MarkSent(ctx, ev.ID, attempts, time.Now()); err != nil {
		rl.logger.Error().Err(err).Stringer("event_id", ev.ID).Msg("failed to mark event sent")
	}
}

// splitMessage undoes the subject+"\n"+body packing used when the event was
// first recorded.
func splitMessage(message string) (subject, body string) {
	subject, body, found := strings.Cut(message, "\n")
	if !found {
		return message, message
	}
	return subject, body
}
