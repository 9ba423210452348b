package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeChannelLister struct {
	channels []Channel
}

func (f *fakeChannelLister) ListVerifiedByOwner(_ context.Context, _ uuid.UUID) ([]Channel, error) {
	return f.channels, nil
}

type fakeEventStore struct {
	mu         sync.Mutex
	events     []NotificationEvent
	sentWithin bool
}

func (f *fakeEventStore) Create(_ context.Context, ev NotificationEvent) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev.ID = uuid.New()
	f.events = append(f.events, ev)
	return ev.ID, nil
}

func (f *fakeEventStore) SentWithin(_ context.Context, _ uuid.UUID, _ string, _ time.Time) (bool, error) {
	return f.sentWithin, nil
}

func (f *fakeEventStore) byState(state EventState) []NotificationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []NotificationEvent
	for _, ev := range f.events {
		if ev.State == state {
			out = append(out, ev)
		}
	}
	return out
}

type fakeCooldown struct {
	claimed bool // true means the window was free and is now ours
}

func (f *fakeCooldown) ClaimCooldown(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) (bool, error) {
	return f.claimed, nil
}

type recordingProvider struct {
	mu    sync.Mutex
	sent  []string // channel addresses
	fails map[string]bool
}

func (p *recordingProvider) Send(_ context.Context, ch Channel, _, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fails[ch.Address] {
		return errors.New("provider rejected")
	}
	p.sent = append(p.sent, ch.Address)
	return nil
}

func verifiedChannel(kind ChannelKind, address string) Channel {
	return Channel{
		ID:      uuid.New(),
		OwnerID: uuid.New(),
		Kind:    kind,
		Address: address,
		State:   ChannelVerified,
	}
}

func testTransition() TransitionEvent {
	return TransitionEvent{
		TargetID:   uuid.New(),
		OwnerID:    uuid.New(),
		TargetURL:  "https://example.com",
		FromStatus: "up",
		ToStatus:   "down",
		OccurredAt: time.Now(),
	}
}

func newTestNotifyDispatcher(channels []Channel, events *fakeEventStore, cooldown *fakeCooldown, provider Provider) *Dispatcher {
	log := zerolog.Nop()
	return NewDispatcher(
		context.Background(),
		1,
		15*time.Minute,
		make(chan TransitionEvent),
		&fakeChannelLister{channels: channels},
		events,
		cooldown,
		NewProviderSet(provider, provider),
		&log,
	)
}

func TestHandleTransitionDeliversToAllChannels(t *testing.T) {
	channels := []Channel{
		verifiedChannel(ChannelEmail, "a@example.com"),
		verifiedChannel(ChannelSMS, "+15550001111"),
	}
	events := &fakeEventStore{}
	provider := &recordingProvider{}

	d := newTestNotifyDispatcher(channels, events, &fakeCooldown{claimed: true}, provider)
	d.HandleTransition(context.Background(), testTransition())

	if len(provider.sent) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(provider.sent))
	}

	sent := events.byState(EventSent)
	if len(sent) != 2 {
		t.Fatalf("sent events = %d, want 2", len(sent))
	}
	for _, ev := range sent {
		if ev.SentAt == nil {
			t.Fatal("sent event missing sent_at")
		}
		if ev.Attempts != 1 {
			t.Fatalf("attempts = %d, want 1", ev.Attempts)
		}
	}
}

func TestHandleTransitionCooldownSuppresses(t *testing.T) {
	channels := []Channel{
		verifiedChannel(ChannelEmail, "a@example.com"),
		verifiedChannel(ChannelEmail, "b@example.com"),
	}
	events := &fakeEventStore{sentWithin: true}
	provider := &recordingProvider{}

	d := newTestNotifyDispatcher(channels, events, &fakeCooldown{claimed: true}, provider)
	d.HandleTransition(context.Background(), testTransition())

	if len(provider.sent) != 0 {
		t.Fatalf("deliveries = %d, want 0 inside cooldown", len(provider.sent))
	}

	suppressed := events.byState(EventSuppressed)
	if len(suppressed) != 2 {
		t.Fatalf("suppressed events = %d, want one per channel", len(suppressed))
	}
	for _, ev := range suppressed {
		if ev.SuppressReason != "cooldown" {
			t.Fatalf("suppress reason = %q, want cooldown", ev.SuppressReason)
		}
	}
}

func TestHandleTransitionRedisClaimLostSuppresses(t *testing.T) {
	channels := []Channel{verifiedChannel(ChannelEmail, "a@example.com")}
	events := &fakeEventStore{}
	provider := &recordingProvider{}

	// event log is clean but another instance already claimed the window
	d := newTestNotifyDispatcher(channels, events, &fakeCooldown{claimed: false}, provider)
	d.HandleTransition(context.Background(), testTransition())

	if len(provider.sent) != 0 {
		t.Fatal("delivered despite losing the cooldown claim")
	}
	if len(events.byState(EventSuppressed)) != 1 {
		t.Fatal("lost claim not recorded as suppressed")
	}
}

func TestHandleTransitionChannelFailureIsIsolated(t *testing.T) {
	good := verifiedChannel(ChannelEmail, "good@example.com")
	bad := verifiedChannel(ChannelEmail, "bad@example.com")

	events := &fakeEventStore{}
	provider := &recordingProvider{fails: map[string]bool{bad.Address: true}}

	d := newTestNotifyDispatcher([]Channel{good, bad}, events, &fakeCooldown{claimed: true}, provider)
	d.HandleTransition(context.Background(), testTransition())

	if len(provider.sent) != 1 || provider.sent[0] != good.Address {
		t.Fatalf("deliveries = %v, want only %s", provider.sent, good.Address)
	}

	failed := events.byState(EventFailed)
	if len(failed) != 1 {
		t.Fatalf("failed events = %d, want 1", len(failed))
	}
	if failed[0].ChannelID != bad.ID {
		t.Fatal("failure recorded against the wrong channel")
	}
	if len(events.byState(EventSent)) != 1 {
		t.Fatal("healthy channel delivery not recorded")
	}
}

func TestHandleTransitionNoVerifiedChannels(t *testing.T) {
	events := &fakeEventStore{}
	provider := &recordingProvider{}

	d := newTestNotifyDispatcher(nil, events, &fakeCooldown{claimed: true}, provider)
	d.HandleTransition(context.Background(), testTransition())

	if len(events.events) != 0 {
		t.Fatal("events recorded with no channels to notify")
	}
}
