package ingest

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"time"

	"pulsewatch/pkg/apperror"
	"pulsewatch/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const maxCallbackBody = 1 << 20 // 1 MiB

type AttachStore interface {
	AttachResponse(ctx context.Context, requestID uuid.UUID, rawResponse string, answeredAt time.Time) (bool, error)
}

type CallbackResponse struct {
	Attached bool `json:"attached"`
}

// Handler accepts regional worker callbacks. The path secret is a shared
// secret, not an auth scheme; beyond matching it the endpoint only
// accepts or rejects payload shapes.
type Handler struct {
	secret  string
	pending AttachStore
}

func NewHandler(secret string, pending AttachStore) *Handler {
	return &Handler{
		secret:  secret,
		pending: pending,
	}
}

// POST /ingest/{secret} — body is the worker's raw result payload. Only the
// request id is extracted here; the full decode happens at ingest time so a
// half-broken payload still gets parked on its pending row for inspection.
func (h *Handler) PostResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	secret := chi.URLParam(r, "secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.secret)) != 1 {
		utils.WriteError(w, http.StatusNotFound, reqID, apperror.NotFound, "")
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, reqID, apperror.MalformedPayload, "unreadable body")
		return
	}

	requestID, err := ExtractRequestID(string(raw))
	if err != nil {
		utils.FromAppError(w, reqID, err)
		return
	}

	attached, err := h.pending.AttachResponse(ctx, requestID, string(raw), time.Now())
	if err != nil {
		utils.FromAppError(w, reqID, err)
		return
	}

	// attached=false: unknown request id or a repost for an already answered
	// request; both are fine to acknowledge, the worker should not retry
	utils.WriteJSON(w, http.StatusOK, reqID, "", CallbackResponse{Attached: attached})
}

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/{secret}", h.PostResult)

	return r
}
