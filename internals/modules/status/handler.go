package status

import (
	"net/http"
	"time"

	"pulsewatch/pkg/apperror"
	"pulsewatch/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type PublicStatusResponse struct {
	Status        string `json:"status"`
	LastChangedAt string `json:"last_changed_at,omitempty"`
}

type Handler struct {
	service *PublicService
}

func NewHandler(service *PublicService) *Handler {
	return &Handler{service: service}
}

// GET /status/{token} — the public status page data, no auth.
func (h *Handler) GetPublicStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, reqID, apperror.NotFound, "unknown status page")
		return
	}

	st, err := h.service.GetByToken(ctx, token)
	if err != nil {
		utils.FromAppError(w, reqID, err)
		return
	}

	resp := PublicStatusResponse{Status: string(st.Status)}
	if !st.LastChangedAt.IsZero() {
		resp.LastChangedAt = st.LastChangedAt.UTC().Format(time.RFC3339)
	}

	utils.WriteJSON(w, http.StatusOK, reqID, "", resp)
}

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/{token}", h.GetPublicStatus)

	return r
}
