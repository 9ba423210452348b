package notify

import (
	"encoding/json"
	"net/http"

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

func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	user, ok := middle.UserFromContext(ctx)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, reqID, apperror.Unauthorised, "")
		return
	}

	var req CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, reqID, apperror.InvalidInput, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, reqID, apperror.InvalidInput, err.Error())
		return
	}

	channelID, err := h.service.CreateChannel(ctx, user.UserID, ChannelKind(req.Kind), req.Address)
	if err != nil {
		utils.FromAppError(w, reqID, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, reqID, "channel created", channelID.String())
}

func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	user, ok := middle.UserFromContext(ctx)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, reqID, apperror.Unauthorised, "")
		return
	}

	channels, err := h.service.ListChannels(ctx, user.UserID)
	if err != nil {
		utils.FromAppError(w, reqID, err)
		return
	}

	resp := ListChannelsResponse{
		OwnerID:  user.UserID.String(),
		Channels: make([]ChannelResponse, 0, len(channels)),
	}
	for i := range channels {
		resp.Channels = append(resp.Channels, toChannelResponse(channels[i]))
	}

	utils.WriteJSON(w, http.StatusOK, reqID, "", resp)
}

// POST /channels/{channelID}/verify
func (h *Handler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	user, ok := middle.UserFromContext(ctx)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, reqID, apperror.Unauthorised, "")
		return
	}

	channelID, err := uuid.Parse(chi.URLParam(r, "channelID"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, reqID, apperror.InvalidInput, "invalid channel id")
		return
	}

	if err := h.service.RequestVerification(ctx, user.UserID, channelID); err != nil {
		utils.FromAppError(w, reqID, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, reqID, "verification code sent", struct{}{})
}

// POST /channels/{channelID}/confirm
func (h *Handler) ConfirmVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	user, ok := middle.UserFromContext(ctx)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, reqID, apperror.Unauthorised, "")
		return
	}

	channelID, err := uuid.Parse(chi.URLParam(r, "channelID"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, reqID, apperror.InvalidInput, "invalid channel id")
		return
	}

	var req ConfirmVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, reqID, apperror.InvalidInput, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, reqID, apperror.InvalidInput, err.Error())
		return
	}

	if err := h.service.ConfirmVerification(ctx, user.UserID, channelID, req.Code); err != nil {
		utils.FromAppError(w, reqID, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, reqID, "channel verified", struct{}{})
}

func toChannelResponse(ch Channel) ChannelResponse {
	return ChannelResponse{
		ID:      ch.ID.String(),
		Kind:    string(ch.Kind),
		Address: ch.Address,
		State:   string(ch.State),
	}
}
