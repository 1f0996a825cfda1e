package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/syncwave/syncwave/internal/logging"
	"github.com/syncwave/syncwave/internal/syncerr"
)

// Response is the standardized JSON envelope for every endpoint under
// /api, adapted from the teacher's APIResponse.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Response{Success: status < 400, Data: data}); err != nil {
		logging.Error().Err(err).Msg("api: failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Response{Success: false, Error: &errorBody{Code: code, Message: message}}); err != nil {
		logging.Error().Err(err).Msg("api: failed to encode error response")
	}
}

// respondFromErr maps a syncerr.Kind to the HTTP status the spec's error
// taxonomy assigns it (spec §7).
func respondFromErr(w http.ResponseWriter, err error) {
	kind, ok := syncerr.KindOf(err)
	if !ok {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	switch kind {
	case syncerr.KindNotFound:
		respondError(w, http.StatusNotFound, string(kind), err.Error())
	case syncerr.KindValidation:
		respondError(w, http.StatusBadRequest, string(kind), err.Error())
	case syncerr.KindUnauthorized:
		respondError(w, http.StatusUnauthorized, string(kind), err.Error())
	case syncerr.KindCapabilityUnavailable:
		respondError(w, http.StatusServiceUnavailable, string(kind), err.Error())
	case syncerr.KindRateLimited:
		respondError(w, http.StatusTooManyRequests, string(kind), err.Error())
	default:
		respondError(w, http.StatusBadGateway, string(kind), err.Error())
	}
}

type healthBody struct {
	Status    string    `json:"status"`
	Database  bool      `json:"database"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}
