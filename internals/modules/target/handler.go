package target

import (
	"encoding/json"
	"net/http"
	"strconv"

	middle "pulsewatch/internals/middleware"
	"pulsewatch/pkg/apperror"
	"pulsewatch/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service, validator *validator.Validate) *Handler {
	return &Handler{
		service:   service,
		validator: validator,
	}
}

func (h *Handler) CreateTarget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	user, ok := middle.UserFromContext(ctx)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, reqID, apperror.Unauthorised, "")
		return
	}

	var req CreateTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, reqID, apperror.InvalidInput, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, reqID, apperror.InvalidInput, err.Error())
		return
	}

	targetID, err := h.service.CreateTarget(ctx, CreateTargetCmd{
		OwnerID:     user.UserID,
		URL:         req.URL,
		IntervalSec: req.IntervalSec,
		Regions:     req.Regions,
	})
	if err != nil {
		utils.FromAppError(w, reqID, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, reqID, "target created", targetID.String())
}

func (h *Handler) GetTarget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	user, ok := middle.UserFromContext(ctx)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, reqID, apperror.Unauthorised, "")
		return
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "targetID"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, reqID, apperror.InvalidInput, "invalid target id")
		return
	}

	t, err := h.service.GetTarget(ctx, user.UserID, targetID)
	if err != nil {
		utils.FromAppError(w, reqID, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, reqID, "target retrieved", toTargetResponse(t))
}

// GET /targets?offset={}&limit={}
func (h *Handler) GetAllTargets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	user, ok := middle.UserFromContext(ctx)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, reqID, apperror.Unauthorised, "")
		return
	}

	limit := parseQueryInt(r, "limit", 50)
	offset := parseQueryInt(r, "offset", 0)

	targets, err := h.service.GetAllTargets(ctx, user.UserID, limit, offset)
	if err != nil {
		utils.FromAppError(w, reqID, err)
		return
	}

	resp := ListTargetsResponse{
		OwnerID: user.UserID.String(),
		Limit:   limit,
		Offset:  offset,
		Targets: make([]TargetResponse, 0, len(targets)),
	}
	for i := range targets {
		resp.Targets = append(resp.Targets, toTargetResponse(targets[i]))
	}

	utils.WriteJSON(w, http.StatusOK, reqID, "", resp)
}

// PATCH /targets/{targetID}
func (h *Handler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	user, ok := middle.UserFromContext(ctx)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, reqID, apperror.Unauthorised, "")
		return
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "targetID"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, reqID, apperror.InvalidInput, "invalid target id")
		return
	}

	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, reqID, apperror.InvalidInput, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, reqID, apperror.InvalidInput, err.Error())
		return
	}

	if err := h.service.SetEnabled(ctx, user.UserID, targetID, *req.Enable); err != nil {
		utils.FromAppError(w, reqID, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, reqID, "target updated", struct{}{})
}

func toTargetResponse(t CheckTarget) TargetResponse {
	return TargetResponse{
		ID:          t.ID.String(),
		URL:         t.URL,
		IntervalSec: t.IntervalSec,
		Regions:     t.Regions,
		Enabled:     t.Enabled,
		PublicToken: t.PublicToken.String(),
	}
}

func parseQueryInt(r *http.Request, name string, def int32) int32 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || v < 0 {
		return def
	}
	return int32(v)
}
