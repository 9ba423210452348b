package ingest

import (
	"encoding/json"
	"strings"

	"pulsewatch/internals/modules/status"
	"pulsewatch/pkg/apperror"

	"github.com/google/uuid"
)

// WorkerReport is the decoded body a regional worker posts back.
type WorkerReport struct {
	StatusCode  int32  `json:"status_code"`
	LatencyMS   int64  `json:"latency_ms"`
	BodyExcerpt string `json:"body_excerpt"`
	// optional explicit assertion; workers that can tell degraded from up
	// set it, everyone else leaves it empty and the code decides
	Status string `json:"status,omitempty"`
}

type callbackEnvelope struct {
	RequestID uuid.UUID `json:"request_id"`
}

// DecodeWorkerReport parses a worker payload. Well-formed JSON is the wire
// format; some deployed workers still double-encode the body as a JSON
// string, so that shape is unwrapped as a fallback before giving up.
func DecodeWorkerReport(raw string) (WorkerReport, error) {
	const op string = "ingest.decode_worker_report"

	var rep WorkerReport
	if err := json.Unmarshal([]byte(raw), &rep); err == nil && rep.valid() {
		return rep, nil
	}

	if inner, ok := unwrapEscaped(raw); ok {
		if err := json.Unmarshal([]byte(inner), &rep); err == nil && rep.valid() {
			return rep, nil
		}
	}

	return WorkerReport{}, apperror.New(apperror.MalformedPayload, op, nil).
		WithMessage("worker payload is not decodable")
}

// ExtractRequestID pulls the request id out of a callback payload, tolerating
// the same legacy escaping as DecodeWorkerReport.
func ExtractRequestID(raw string) (uuid.UUID, error) {
	const op string = "ingest.extract_request_id"

	var env callbackEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err == nil && env.RequestID != uuid.Nil {
		return env.RequestID, nil
	}

	if inner, ok := unwrapEscaped(raw); ok {
		if err := json.Unmarshal([]byte(inner), &env); err == nil && env.RequestID != uuid.Nil {
			return env.RequestID, nil
		}
	}

	return uuid.Nil, apperror.New(apperror.MalformedPayload, op, nil).
		WithMessage("payload carries no request id")
}

// unwrapEscaped recovers the inner document of a double-encoded payload:
// either a JSON string containing JSON, or a bare blob with escaped quotes.
func unwrapEscaped(raw string) (string, bool) {
	var inner string
	if err := json.Unmarshal([]byte(raw), &inner); err == nil {
		return inner, true
	}
	if strings.Contains(raw, `\"`) {
		return strings.ReplaceAll(raw, `\"`, `"`), true
	}
	return "", false
}

func (r WorkerReport) valid() bool {
	if r.Status != "" {
		_, ok := status.ParseStatus(r.Status)
		return ok
	}
	return r.StatusCode != 0
}

// DeriveStatus maps the report onto an observed status: an explicit worker
// assertion wins, otherwise 2xx/3xx is up and everything else is down.
func (r WorkerReport) DeriveStatus() status.Status {
	if st, ok := status.ParseStatus(r.Status); ok {
		return st
	}
	if r.StatusCode >= 200 && r.StatusCode < 400 {
		return status.StatusUp
	}
	return status.StatusDown
}
