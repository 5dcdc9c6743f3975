package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nsridhar76/go-orderrelay/internal/domain"
	"github.com/nsridhar76/go-orderrelay/internal/logging"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(r.Context()).Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, r, status, errorResponse{Error: apiError{Code: code, Message: message}})
}

// respondDomainError maps domain sentinels to HTTP statuses. Anything
// unrecognized is logged and reported as a 500.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidOrderID), errors.Is(err, domain.ErrInvalidOrder):
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		respondError(w, r, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found")
	case errors.Is(err, domain.ErrDeliveryTermNotFound):
		respondError(w, r, http.StatusNotFound, "DELIVERY_TERM_NOT_FOUND", "delivery term not found")
	case errors.Is(err, domain.ErrOrderNotPending):
		respondError(w, r, http.StatusConflict, "ORDER_NOT_PENDING", "order is not pending")
	default:
		logging.FromContext(r.Context()).Error("unhandled domain error", "error", err)
		respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}
