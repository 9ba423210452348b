package apperror

import (
	"errors"
	"net/http"
)

func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	return StatusForKind(e.Kind)
}

func StatusForKind(kind Kind) int {
	switch kind {
	case InvalidInput, MalformedPayload:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Unauthorised:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case RequestTimeout:
		return http.StatusGatewayTimeout
	case Dependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
