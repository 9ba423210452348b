package status

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"

	// StatusUnknown is only ever surfaced on the public page for a target
	// that has not been reconciled yet; it is never stored.
	StatusUnknown Status = "unknown"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusUp, StatusDown, StatusDegraded:
		return Status(s), true
	default:
		return "", false
	}
}

// Record is one per-region observation. Append-only: rows are inserted by the
// ingestor (or the watchdog, with Synthetic set) and never touched again.
type Record struct {
	ID         uuid.UUID
	TargetID   uuid.UUID
	Region     string
	Status     Status
	LatencyMS  int64
	HTTPStatus *int32
	ObservedAt time.Time
	Synthetic  bool
}

// Canonical is the externally visible state of a target, derived from the
// most recent record per assigned region. LastChangedAt only moves when the
// derived status actually differs from the stored one.
type Canonical struct {
	TargetID       uuid.UUID
	Status         Status
	LastChangedAt  time.Time
	ReconciledAt   time.Time
	RegionStatuses map[string]Status
}
