package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"pulsewatch/pkg/apperror"

	"github.com/rs/zerolog/log"
)

type SuccessResponse[T any] struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
	Data      T      `json:"data,omitempty"`
}

type ErrorBody struct {
	Kind    apperror.Kind `json:"kind"`
	Message string        `json:"message,omitempty"`
}

type ErrorResponse struct {
	Success   bool      `json:"success"`
	RequestID string    `json:"request_id"`
	Error     ErrorBody `json:"error"`
}

func WriteJSON[T any](w http.ResponseWriter, status int, reqID string, message string, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	res := SuccessResponse[T]{
		Success:   true,
		RequestID: reqID,
		Message:   message,
		Data:      data,
	}

	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.Error().Err(err).Msg("error encoding success response")
	}
}

func FromAppError(w http.ResponseWriter, reqID string, err error) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		appErr = &apperror.Error{
			Kind:    apperror.Internal,
			Message: "internal server error",
		}
	}

	WriteError(w, apperror.StatusForKind(appErr.Kind), reqID, appErr.Kind, appErr.Message)
}

func WriteError(w http.ResponseWriter, httpStatusCode int, reqID string, kind apperror.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)

	res := ErrorResponse{
		Success:   false,
		RequestID: reqID,
		Error: ErrorBody{
			Kind:    kind,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.Error().Err(err).Msg("error encoding error response")
	}
}
