package httpapi

import (
	"errors"
	"log"
	"net/http"

	"centralkitchen/backend/internal/store"
)

// ErrorRenderer maps a service error to an HTTP status and a stable error code.
type ErrorRenderer func(err error) (status int, code string)

func DefaultErrorRenderer(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, store.ErrIncompletePlan):
		return http.StatusConflict, "INCOMPLETE_PLAN"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, store.ErrQuantityExceedsPlan):
		return http.StatusUnprocessableEntity, "QUANTITY_EXCEEDS_PLAN"
	case errors.Is(err, store.ErrEmptyOrder):
		return http.StatusUnprocessableEntity, "EMPTY_ORDER"
	case errors.Is(err, store.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_STOCK"
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := a.renderError(err)
	writeError(w, r, status, code, err)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	// 5xx bodies carry a generic message; the cause goes to the log only.
	msg := err.Error()
	requestID := requestIDFromContext(r.Context())
	if status >= 500 {
		log.Printf("[http] ERROR: status=%d request_id=%s: %v", status, requestID, err)
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: requestID,
	})
}
