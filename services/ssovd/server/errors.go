package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"ssov/native/bank"
	"ssov/native/collateral"
	"ssov/native/optiontoken"
	"ssov/native/pricing"
	"ssov/native/ssov"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps an engine failure to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, pricing.ErrPriceUnavailable), errors.Is(err, pricing.ErrPriceStale):
		return http.StatusServiceUnavailable, "price_unavailable"
	case errors.Is(err, bank.ErrInsufficientBalance), errors.Is(err, optiontoken.ErrInsufficientFunds):
		return http.StatusBadRequest, "insufficient_balance"
	case errors.Is(err, optiontoken.ErrInsufficientAllow):
		return http.StatusBadRequest, "insufficient_allowance"
	case errors.Is(err, optiontoken.ErrNonTransferable):
		return http.StatusBadRequest, "non_transferable"
	case errors.Is(err, collateral.ErrNotNativeAsset), errors.Is(err, collateral.ErrUnknownAsset):
		return http.StatusBadRequest, "invalid_asset"
	}
	code := ssov.ErrorCode(err)
	switch code {
	case "unauthorized":
		return http.StatusForbidden, code
	case "paused":
		return http.StatusServiceUnavailable, code
	case "internal", "arithmetic_overflow":
		return http.StatusInternalServerError, code
	case "invalid_strike", "invalid_strike_index", "invalid_amount", "invalid_input", "zero_balance",
		"arithmetic_underflow":
		return http.StatusBadRequest, code
	default:
		return http.StatusConflict, code
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("ssovd: request failed",
			"requestId", RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err)
		message = http.StatusText(status)
	}
	writeError(w, status, code, message)
}
