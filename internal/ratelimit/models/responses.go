package models

import "time"

// RateLimitExceededResponse is the API response when rate limit is exceeded.
type RateLimitExceededResponse struct {
	Error      string    `json:"error"` // "rate_limit_exceeded"
	Message    string    `json:"message"`
	Action     string    `json:"action"`
	RetryAfter int       `json:"retry_after"` // seconds
	ResetAt    time.Time `json:"reset_at"`
}
