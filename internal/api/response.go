package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nhle/taskflow/internal/apperr"
)

// maxRequestBodySize bounds JSON request bodies.
const maxRequestBodySize = 16 << 10

// Envelope wraps every JSON response.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// writeJSON writes a success envelope. If encoding fails (typically
// because the client disconnected), the error is only logged.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Envelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < http.StatusBadRequest,
	}); err != nil {
		logger.Warn("writing JSON response", "error", err, "status", status)
	}
}

// ErrorWriter returns a function that writes err as an error envelope.
// Internal errors are logged with their cause and reported with a fixed
// message.
func ErrorWriter(logger *slog.Logger) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		status := apperr.StatusCode(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"error", err,
			)
		}
		writeJSON(w, logger, status, nil, apperr.PublicMessage(err))
	}
}

// decodeJSON reads a size-limited JSON body into dst. Unknown fields are
// ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Invalidf("Request body too large (max %d bytes)", maxRequestBodySize)
		}
		return apperr.Wrap(apperr.ValidationFailed, "Invalid request body", err)
	}
	return nil
}

// queryInt parses an optional integer query parameter. Absent means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Invalidf("Invalid %s parameter", name)
	}
	return n, nil
}
