// Package models defines the rate limit decision and the fixed-window counter.
package models

import (
	"time"
)

// Scope says which identifier a limit applies to.
type Scope string

const (
	ScopeUser Scope = "user"
	ScopeIP   Scope = "ip"
)

// IsValid checks if the scope is one of the supported enum values.
func (s Scope) IsValid() bool {
	return s == ScopeUser || s == ScopeIP
}

// Window is the state of one fixed-window counter after a hit.
type Window struct {
	Count   int       `json:"count"`
	ResetAt time.Time `json:"reset_at"`
}

// Expired reports whether now is past the end of the window.
func (w Window) Expired(now time.Time) bool {
	return now.After(w.ResetAt)
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Action     string    `json:"action"`
	Scope      Scope     `json:"scope"`
	Limit      int       `json:"limit"`
	Count      int       `json:"count"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// NewResult builds the result for a counter state against limit.
func NewResult(action string, scope Scope, limit int, w Window, allowed bool, now time.Time) *RateLimitResult {
	res := &RateLimitResult{
		Allowed:   allowed,
		Action:    action,
		Scope:     scope,
		Limit:     limit,
		Count:     w.Count,
		Remaining: max(limit-w.Count, 0),
		ResetAt:   w.ResetAt,
	}
	if !allowed {
		res.RetryAfter = max(int(w.ResetAt.Sub(now).Round(time.Second)/time.Second), 1)
	}
	return res
}

// Denied builds the result for an action with no configured limit.
func Denied(action string, scope Scope) *RateLimitResult {
	return &RateLimitResult{Action: action, Scope: scope}
}
