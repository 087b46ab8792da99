package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/splax/moodjournal/internal/service/auth"
	"github.com/splax/moodjournal/internal/service/journal"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends a failure envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Success: false, Message: msg})
}

// writeServiceError maps service failures onto status codes. Unknown errors
// are logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, req *http.Request, err error) {
	var invalid validationError
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, invalid.message)
	case errors.Is(err, auth.ErrMissingFields):
		writeError(w, http.StatusBadRequest, msgMissingFields)
	case errors.Is(err, auth.ErrPasswordTooLong):
		writeError(w, http.StatusBadRequest, "Password too long")
	case errors.Is(err, auth.ErrFieldTooLong):
		writeError(w, http.StatusBadRequest, "Name or email too long")
	case errors.Is(err, journal.ErrEmptyText):
		writeError(w, http.StatusBadRequest, msgTextRequired)
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, "Email already registered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, journal.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	default:
		logger.Error("request failed", "error", err, "method", req.Method, "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
