package rabbitmq

import (
	"github.com/google/uuid"
)

// CheckRequestMessage is published to a region queue when a pending check
// request is created. Regional workers execute the check and post the result
// back, quoting RequestID.
type CheckRequestMessage struct {
	RequestID      uuid.UUID `json:"request_id"`
	TargetID       uuid.UUID `json:"target_id"`
	URL            string    `json:"url"`
	Region         string    `json:"region"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// CheckResultMessage is what regional workers publish to the results queue.
// Payload is the worker's raw response body, decoded later by the ingestor.
type CheckResultMessage struct {
	RequestID uuid.UUID `json:"request_id"`
	Payload   string    `json:"payload"`
}
