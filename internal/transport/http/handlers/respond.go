package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/pkg/validator"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"code":   "VALIDATION_ERROR",
			"fields": errs,
		},
	})
}

// writeServiceError maps err's kind to a status. Unknown and transient
// errors are logged and their message is not shown to the client.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	var derr *domain.Error
	message := err.Error()
	if errors.As(err, &derr) && derr.Msg != "" {
		message = derr.Msg
	}

	switch domain.KindOf(err) {
	case domain.KindValidation:
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", message)
	case domain.KindAuthorization:
		writeError(w, http.StatusForbidden, "FORBIDDEN", message)
	case domain.KindNotFound:
		writeError(w, http.StatusNotFound, "NOT_FOUND", message)
	case domain.KindConflict:
		writeError(w, http.StatusConflict, "CONFLICT", message)
	case domain.KindTransient:
		logger.Warn(msg, "error", err.Error())
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Service temporarily unavailable")
	default:
		logger.Error(msg, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return false
	}
	if errs := validator.Struct(v); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
