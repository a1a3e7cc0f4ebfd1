package gateway

import (
	"encoding/json"
	"net/http"
)

// rateLimitedBody is the wire shape for a quota rejection.
type rateLimitedBody struct {
	Status            string `json:"status"`
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
}

func writeRateLimited(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(rateLimitedBody{
		Status:            "error",
		Code:              "rate_limited",
		Message:           "Too many requests, retry later",
		RetryAfterSeconds: retryAfterSeconds,
	})
}
