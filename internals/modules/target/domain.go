package target

import (
	"time"

	"github.com/google/uuid"
)

type CreateTargetCmd struct {
	OwnerID     uuid.UUID
	URL         string
	IntervalSec int32
	Regions     []string
}

// CheckTarget is a user-owned endpoint monitored from one or more regions.
// PublicToken is assigned once at creation and never changes; status pages
// are keyed by it. Targets are soft-disabled, never deleted, so history
// behind them stays intact.
type CheckTarget struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	URL         string
	IntervalSec int32
	Regions     []string
	Enabled     bool
	PublicToken uuid.UUID
	CreatedAt   time.Time
}
