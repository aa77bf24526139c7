// Package pacing spaces out requests to the price API. Every query is
// followed by a fixed courtesy delay; after a rate-limited query the next
// wait is stretched to a longer cool-down.
package pacing

import (
	"time"
)

// Default delays.
const (
	// DefaultDelay is the fixed pause between two queries.
	DefaultDelay = 500 * time.Millisecond

	// DefaultCooldown is the pause after the API answered 429.
	DefaultCooldown = 5 * time.Second
)

// State is the pacer's view of the remote service.
type State struct {
	// Throttled is set after a rate-limited query and cleared by the next wait.
	Throttled bool `json:"throttled"`

	// LastWait is when the last wait finished.
	LastWait time.Time `json:"last_wait"`

	// Waits counts completed waits.
	Waits int `json:"waits"`

	// Throttles counts cool-downs applied.
	Throttles int `json:"throttles"`
}

// NextDelay returns the delay the next wait should use.
func (s *State) NextDelay(delay, cooldown time.Duration) time.Duration {
	if s.Throttled && cooldown > delay {
		return cooldown
	}
	return delay
}
