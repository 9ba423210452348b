package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type VerifiedChannelLister interface {
	ListVerifiedByOwner(ctx context.Context, ownerID uuid.UUID) ([]Channel, error)
}

type EventStore interface {
	Create(ctx context.Context, ev NotificationEvent) (uuid.UUID, error)
	SentWithin(ctx context.Context, targetID uuid.UUID, toStatus string, since time.Time) (bool, error)
}

// Cooldown is the redis fast path for the dedup window.
type Cooldown interface {
	ClaimCooldown(ctx context.Context, targetID uuid.UUID, direction string, window time.Duration) (bool, error)
}

// Dispatcher fans a status transition out to the owner's verified channels.
// Repeat transitions in the same direction inside the cooldown window are
// suppressed (and recorded as such) so a flapping target cannot spam anyone.
type Dispatcher struct {
	ctx            context.Context
	workerCount    int
	cooldownWindow time.Duration

	transitions <-chan TransitionEvent

	channels  VerifiedChannelLister
	events    EventStore
	cooldown  Cooldown
	providers *ProviderSet

	workerWG sync.WaitGroup
	logger   *zerolog.Logger
}

func NewDispatcher(
	ctx context.Context,
	workerCount int,
	cooldownWindow time.Duration,
	transitions <-chan TransitionEvent,
	channels VerifiedChannelLister,
	events EventStore,
	cooldown Cooldown,
	providers *ProviderSet,
	logger *zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		ctx:            ctx,
		workerCount:    workerCount,
		cooldownWindow: cooldownWindow,
		transitions:    transitions,
		channels:       channels,
		events:         events,
		cooldown:       cooldown,
		providers:      providers,
		logger:         logger,
	}
}

func (d *Dispatcher) Run() {
	d.workerWG.Add(d.workerCount)

	for i := 0; i < d.workerCount; i++ {
		go func() {
			defer d.workerWG.Done()
			for ev := range d.transitions {
				d.HandleTransition(d.ctx, ev)
			}
		}()
	}
}

// WorkerClosingWait blocks until all dispatch workers have drained.
func (d *Dispatcher) WorkerClosingWait() {
	d.workerWG.Wait()
}

func (d *Dispatcher) HandleTransition(ctx context.Context, ev TransitionEvent) {
	channels, err := d.channels.ListVerifiedByOwner(ctx, ev.OwnerID)
	if err != nil {
		d.logger.Error().Err(err).
			Stringer("target_id", ev.TargetID).
			Msg("failed to load verified channels for transition")
		return
	}
	if len(channels) == 0 {
		d.logger.Debug().
			Stringer("target_id", ev.TargetID).
			Msg("transition with no verified channels, nothing to deliver")
		return
	}

	suppressed, err := d.inCooldown(ctx, ev)
	if err != nil {
		d.logger.Error().Err(err).
			Stringer("target_id", ev.TargetID).
			Msg("cooldown check failed, delivering anyway")
		suppressed = false
	}

	if suppressed {
		for _, ch := range channels {
			d.record(ctx, NotificationEvent{
				TargetID:       ev.TargetID,
				ChannelID:      ch.ID,
				FromStatus:     ev.FromStatus,
				ToStatus:       ev.ToStatus,
				State:          EventSuppressed,
				SuppressReason: "cooldown",
			})
		}
		d.logger.Info().
			Stringer("target_id", ev.TargetID).
			Str("direction", ev.ToStatus).
			Msg("transition suppressed by cooldown")
		return
	}

	subject, body := renderTransition(ev)

	// independent fan-out: one slow or broken channel never holds up the rest
	var wg sync.WaitGroup
	wg.Add(len(channels))
	for _, ch := range channels {
		go func(ch Channel) {
			defer wg.Done()
			d.deliver(ctx, ev, ch, subject, body)
		}(ch)
	}
	wg.Wait()
}

// inCooldown consults the authoritative event log first, then claims the
// redis window. Either one saying "recently notified" suppresses.
func (d *Dispatcher) inCooldown(ctx context.Context, ev TransitionEvent) (bool, error) {
	since := time.Now().Add(-d.cooldownWindow)

	sent, err := d.events.SentWithin(ctx, ev.TargetID, ev.ToStatus, since)
	if err != nil {
		return false, err
	}
	if sent {
		return true, nil
	}

	claimed, err := d.cooldown.ClaimCooldown(ctx, ev.TargetID, ev.ToStatus, d.cooldownWindow)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

func (d *Dispatcher) deliver(ctx context.Context, ev TransitionEvent, ch Channel, subject, body string) {
	provider, err := d.providers.For(ch.Kind)
	if err != nil {
		d.logger.Error().Err(err).Stringer("channel_id", ch.ID).Msg("no provider for channel")
		return
	}

	event := NotificationEvent{
		TargetID:   ev.TargetID,
		ChannelID:  ch.ID,
		FromStatus: ev.FromStatus,
		ToStatus:   ev.ToStatus,
		Attempts:   1,
		Message:    subject + "\n" + body,
	}

	if err := provider.Send(ctx, ch, subject, body); err != nil {
		d.logger.Error().Err(err).
			Stringer("target_id", ev.TargetID).
			Stringer("channel_id", ch.ID).
			Msg("notification delivery failed, queued for retry")
		event.State = EventFailed
		d.record(ctx, event)
		return
	}

	now := time.Now()
	event.State = EventSent
	event.SentAt = &now
	d.record(ctx, event)
}

func (d *Dispatcher) record(ctx context.Context, ev NotificationEvent) {
	if _, err := d.events.Create(ctx, ev); err != nil {
		d.logger.Error().Err(err).
			Stringer("target_id", ev.TargetID).
			Msg("failed to record notification event")
	}
}

func renderTransition(ev TransitionEvent) (subject, body string) {
	verb := "changed status"
	switch ev.ToStatus {
	case "down":
		verb = "is DOWN"
	case "up":
		verb = "has recovered"
	case "degraded":
		verb = "is degraded"
	}

	subject = fmt.Sprintf("%s %s", ev.TargetURL, verb)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Status of %s changed", ev.TargetURL)
	if ev.FromStatus != "" {
		fmt.Fprintf(&sb, " from %s", ev.FromStatus)
	}
	fmt.Fprintf(&sb, " to %s at %s.", ev.ToStatus, ev.OccurredAt.UTC().Format(time.RFC3339))
	return subject, sb.String()
}
