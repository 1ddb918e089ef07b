package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/hackgods/tutor-booking/internal/apperr"
	"github.com/hackgods/tutor-booking/internal/payment"
	"github.com/hackgods/tutor-booking/internal/wallet"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// decode reads a JSON body into dst and runs its validate tags. It writes the
// 400 itself and reports false when the body is unusable.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

// handleError maps a service error onto its HTTP status through the shared
// error categories.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *wallet.InsufficientFundsError
	var gatewayErr *payment.GatewayError

	switch {
	case errors.As(err, &insufficient):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_funds", err.Error())
	case errors.As(err, &gatewayErr):
		writeError(w, http.StatusBadGateway, "gateway_error", gatewayErr.Message)
	case apperr.IsValidation(err):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case apperr.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case apperr.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		LoggerFrom(r.Context()).WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
