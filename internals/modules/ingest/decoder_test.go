package ingest

import (
	"errors"
	"testing"

	"pulsewatch/internals/modules/status"
	"pulsewatch/pkg/apperror"

	"github.com/google/uuid"
)

func TestDecodeWorkerReport(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    WorkerReport
		wantErr bool
	}{
		{
			name: "plain json",
			raw:  `{"status_code":200,"latency_ms":123,"body_excerpt":"ok"}`,
			want: WorkerReport{StatusCode: 200, LatencyMS: 123, BodyExcerpt: "ok"},
		},
		{
			name: "explicit status assertion",
			raw:  `{"status":"degraded","latency_ms":950}`,
			want: WorkerReport{Status: "degraded", LatencyMS: 950},
		},
		{
			name: "double-encoded json string",
			raw:  `"{\"status_code\":503,\"latency_ms\":40}"`,
			want: WorkerReport{StatusCode: 503, LatencyMS: 40},
		},
		{
			name: "bare blob with escaped quotes",
			raw:  `{\"status_code\":200,\"latency_ms\":10}`,
			want: WorkerReport{StatusCode: 200, LatencyMS: 10},
		},
		{
			name:    "empty payload",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "valid json with nothing usable",
			raw:     `{"latency_ms":5}`,
			wantErr: true,
		},
		{
			name:    "unknown status assertion",
			raw:     `{"status":"flaky"}`,
			wantErr: true,
		},
		{
			name:    "not json at all",
			raw:     "<html>502 Bad Gateway</html>",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeWorkerReport(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got report %+v", got)
				}
				var appErr *apperror.Error
				if !errors.As(err, &appErr) || appErr.Kind != apperror.MalformedPayload {
					t.Fatalf("error kind = %v, want MalformedPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeWorkerReport: %v", err)
			}
			if got != tt.want {
				t.Fatalf("report = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtractRequestID(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name    string
		raw     string
		want    uuid.UUID
		wantErr bool
	}{
		{
			name: "plain json",
			raw:  `{"request_id":"` + id.String() + `","status_code":200}`,
			want: id,
		},
		{
			name: "double-encoded",
			raw:  `"{\"request_id\":\"` + id.String() + `\"}"`,
			want: id,
		},
		{
			name:    "missing request id",
			raw:     `{"status_code":200}`,
			wantErr: true,
		},
		{
			name:    "garbage",
			raw:     "not a payload",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractRequestID(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got id %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractRequestID: %v", err)
			}
			if got != tt.want {
				t.Fatalf("request id = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name string
		rep  WorkerReport
		want status.Status
	}{
		{"2xx is up", WorkerReport{StatusCode: 204}, status.StatusUp},
		{"3xx is up", WorkerReport{StatusCode: 301}, status.StatusUp},
		{"4xx is down", WorkerReport{StatusCode: 404}, status.StatusDown},
		{"5xx is down", WorkerReport{StatusCode: 503}, status.StatusDown},
		{"assertion beats status code", WorkerReport{StatusCode: 200, Status: "degraded"}, status.StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rep.DeriveStatus(); got != tt.want {
				t.Fatalf("DeriveStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}
