package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"racing-gateway/internal/common/errors"
	"racing-gateway/internal/common/logging"
)

// errorBody is the uniform JSON error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusText maps each failure kind to its HTTP status and public label.
var statusText = map[errors.ErrorType]struct {
	code  int
	label string
}{
	errors.ErrTypeValidation: {http.StatusBadRequest, "Bad Request"},
	errors.ErrTypeAuth:       {http.StatusUnauthorized, "Unauthorized"},
	errors.ErrTypeNotFound:   {http.StatusNotFound, "Not Found"},
	errors.ErrTypeRateLimit:  {http.StatusTooManyRequests, "Too Many Requests"},
	errors.ErrTypeUpstream:   {http.StatusBadGateway, "Bad Gateway"},
	errors.ErrTypeCredential: {http.StatusServiceUnavailable, "Service Unavailable"},
	errors.ErrTypeStorage:    {http.StatusServiceUnavailable, "Service Unavailable"},
}

func (h *Handlers) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", err)
	}
}

// writeError maps an internal failure to the status grid and the uniform
// envelope. Unexpected faults become a detail-free 500.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	mapping, known := statusText[errors.GetType(err)]
	if !known {
		h.logger.Error("Unexpected internal error", err)
		h.writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "Internal Server Error",
			Message: "An unexpected error occurred",
		})
		return
	}

	if hint, ok := errors.RetryAfterHint(err); ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(hint.Seconds())))
	}

	h.logger.Warn("Request failed",
		logging.Field{Key: "status", Value: mapping.code},
		logging.Field{Key: "error", Value: err.Error()},
	)
	h.writeJSON(w, mapping.code, errorBody{
		Error:   mapping.label,
		Message: err.Error(),
	})
}
