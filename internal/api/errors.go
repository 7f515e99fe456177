package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/loanzzz/lending-core/internal/domain"
)

// writeJSON serialises v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates a core error into the {error: string} shape and the
// HTTP status it maps to. Anything unrecognised is logged and returned as
// 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, message := translateError(err)
	if status == http.StatusInternalServerError {
		logger.Error("api: unhandled error", "err", err)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func translateError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrUnauthorised):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrInsufficientBalance), errors.Is(err, domain.ErrLTVExceeded), errors.Is(err, domain.ErrTerminalLoan):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrLedgerConflict):
		return http.StatusInternalServerError, "internal error"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
