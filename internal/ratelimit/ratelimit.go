// Package ratelimit bounds how often an operator may start expensive work
// (runs, package assembly) through the HTTP API. Limits use a sliding
// window kept in redis when configured, with an in-memory fallback while
// redis is failing.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

var errNoStore = errors.New("rate limit store unavailable and no fallback configured")

// Result is the outcome of one check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	// RetryAfter is whole seconds, only set when not allowed.
	RetryAfter int `json:"retry_after,omitempty"`
}

// Store counts requests per key in a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// Limit is the allowance for one endpoint class.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Enabled reports whether the limit restricts anything.
func (l Limit) Enabled() bool {
	return l.Requests > 0 && l.Window > 0
}

// Key builds the store key for a class and caller.
func Key(class, caller string) string {
	return "dsar:ratelimit:" + class + ":" + caller
}

func retryAfter(resetAt, now time.Time) int {
	secs := int(resetAt.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
