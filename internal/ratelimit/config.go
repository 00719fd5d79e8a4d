package ratelimit

import (
	"fmt"
	"time"
)

// Rule holds the per-route rate limiting configuration. Rules are
// immutable after startup; a route with an invalid rule must refuse
// to start rather than silently allow unlimited traffic.
type Rule struct {
	// UserLimit is the maximum number of requests per authenticated
	// user within Window.
	UserLimit int `yaml:"user_limit"`

	// IPLimit is the maximum number of requests per client IP within
	// Window.
	IPLimit int `yaml:"ip_limit"`

	// Window is the duration of the sliding window.
	Window time.Duration `yaml:"window"`

	// BlockFor is how long a key stays blocked after a violation.
	// Zero means no block beyond the window itself.
	BlockFor time.Duration `yaml:"block_for"`
}

// DefaultRule returns the rule applied to routes without an explicit
// configuration.
func DefaultRule() Rule {
	return Rule{
		UserLimit: 100,
		IPLimit:   300,
		Window:    time.Minute,
	}
}

// AuthRule returns a stricter rule for authentication endpoints.
func AuthRule() Rule {
	return Rule{
		UserLimit: 5,
		IPLimit:   20,
		Window:    time.Minute,
		BlockFor:  5 * time.Minute,
	}
}

// Validate returns an error if the rule is unusable. A zero window
// would degenerate to always-allow, so it is rejected here.
func (r Rule) Validate() error {
	if r.UserLimit <= 0 {
		return fmt.Errorf("user_limit must be positive, got %d", r.UserLimit)
	}
	if r.IPLimit <= 0 {
		return fmt.Errorf("ip_limit must be positive, got %d", r.IPLimit)
	}
	if r.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", r.Window)
	}
	if r.BlockFor < 0 {
		return fmt.Errorf("block_for cannot be negative, got %s", r.BlockFor)
	}
	return nil
}
