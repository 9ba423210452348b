package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PendingCheckRequest is an outstanding check handed to a region. It is
// mutated exactly once, when the regional worker's raw response is attached;
// the ingestor then consumes it into a status record and deletes it.
type PendingCheckRequest struct {
	ID             uuid.UUID
	TargetID       uuid.UUID
	Region         string
	DispatchedAt   time.Time
	IdempotencyKey string
	RawResponse    *string
	AnsweredAt     *time.Time
	DecodeFailedAt *time.Time
}

func (p PendingCheckRequest) Answered() bool {
	return p.RawResponse != nil
}

// IdempotencyKey makes dispatch retries within the same minute collapse onto
// the same pending row.
func IdempotencyKey(targetID uuid.UUID, region string, dispatchedAt time.Time) string {
	minute := dispatchedAt.UTC().Truncate(time.Minute).Unix()
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", targetID, region, minute))
	return hex.EncodeToString(sum[:])
}
