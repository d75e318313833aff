// Package apiresp writes the JSON wire format shared by all handlers.
package apiresp

import (
	"encoding/json"
	"net/http"
	"strconv"
)

type errorPayload struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	WriteJSON(w, status, errorPayload{Error: msg})
}

// WriteRateLimited emits a 429 with a retry-after hint in both the
// header and the body.
func WriteRateLimited(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	WriteJSON(w, http.StatusTooManyRequests, errorPayload{
		Error:      "Rate limit exceeded. Please wait a moment.",
		RetryAfter: retryAfterSeconds,
	})
}
