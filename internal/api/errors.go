package api

import (
	"errors"
	"net/http"

	"bookstore-api/internal/apperr"
)

// httpStatusFor maps the core error taxonomy onto HTTP status codes
func httpStatusFor(err error) int {
	var protected *apperr.ProtectedStateError
	switch {
	case errors.As(err, &protected):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrBookNotFound), errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidBookState):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrIntegrity), errors.Is(err, apperr.ErrSigning):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrExpired):
		return http.StatusGone
	case errors.Is(err, apperr.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, apperr.ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
