package notify

import (
	"time"

	"github.com/google/uuid"
)

type ChannelKind string

const (
	ChannelEmail ChannelKind = "email"
	ChannelSMS   ChannelKind = "sms"
)

type ChannelState string

// Verification state machine: unverified -> pending_code_sent -> verified.
// Only verified channels ever receive transition notifications.
const (
	ChannelUnverified      ChannelState = "unverified"
	ChannelPendingCodeSent ChannelState = "pending_code_sent"
	ChannelVerified        ChannelState = "verified"
)

type Channel struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Kind      ChannelKind
	Address   string
	State     ChannelState
	CreatedAt time.Time
}

type EventState string

const (
	EventSent              EventState = "sent"
	EventSuppressed        EventState = "suppressed"
	EventFailed            EventState = "failed"
	EventPermanentlyFailed EventState = "permanently_failed"
)

// NotificationEvent is the audit record of one delivery attempt, sent or
// suppressed. The (target, to-status, cooldown window) dedup rule is enforced
// against these rows.
type NotificationEvent struct {
	ID             uuid.UUID
	TargetID       uuid.UUID
	ChannelID      uuid.UUID
	FromStatus     string
	ToStatus       string
	State          EventState
	Attempts       int
	SuppressReason string
	Message        string
	CreatedAt      time.Time
	SentAt         *time.Time
}

// TransitionEvent is what the reconciler hands over when a target's canonical
// status flips.
type TransitionEvent struct {
	TargetID    uuid.UUID
	OwnerID     uuid.UUID
	TargetURL   string
	FromStatus  string
	ToStatus    string
	OccurredAt  time.Time
}
