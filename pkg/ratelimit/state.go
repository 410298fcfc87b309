// Package ratelimit gates requests to the catalog origin.
// It backs off after consecutive failures and honours Retry-After headers on
// 429 and 503 responses, so an unreachable origin is not hammered by every
// cache miss while stale data is being served.
package ratelimit

import (
	"time"
)

// Defaults for cooldown decisions.
const (
	// DefaultFailureThreshold is the number of consecutive failures that
	// starts a cooldown.
	DefaultFailureThreshold = 3

	// DefaultBaseCooldown is the first cooldown period. Each further failure
	// doubles it.
	DefaultBaseCooldown = 30 * time.Second

	// DefaultMaxCooldown caps the cooldown period.
	DefaultMaxCooldown = 15 * time.Minute
)

// State represents the current origin health as seen by this process.
type State struct {
	// ConsecutiveFailures counts failed fetches since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// BlockedUntil is the end of the current cooldown. Zero when none.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastUpdate is when the state last changed.
	LastUpdate time.Time `json:"last_update"`
}

// IsHealthy returns true when the last fetch succeeded.
func (s *State) IsHealthy() bool {
	return s.ConsecutiveFailures == 0
}

// NeedsCooldown returns true if requests should be held back at now.
func (s *State) NeedsCooldown(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// TimeUntilReset returns the remaining cooldown at now.
// Returns 0 if no cooldown is active.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	d := s.BlockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
