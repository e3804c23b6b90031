package admission

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// errorBody é o corpo JSON das respostas de negação.
type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
	ResetAt    string `json:"resetAt,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondRejected(w http.ResponseWriter, dec domain.Decision) {
	msg := dec.Reason
	if msg == "" {
		msg = "rate limit exceeded"
	}

	retry := int(math.Ceil(dec.ResetAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", formatInt(retry))

	writeJSON(w, http.StatusTooManyRequests, errorBody{
		Error:      "rate_limit_exceeded",
		Message:    msg,
		RetryAfter: retry,
	})
}

func respondBlocked(w http.ResponseWriter, ent *domain.BlockEntry) {
	msg := ent.Reason
	if msg == "" {
		msg = "temporarily blocked"
	}

	writeJSON(w, http.StatusForbidden, errorBody{
		Error:   "blocked",
		Message: msg,
		ResetAt: ent.ExpiresAt().UTC().Format(time.RFC3339),
	})
}

func respondUnavailable(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, errorBody{
		Error:   "admission_unavailable",
		Message: "admission control temporarily unavailable",
	})
}
