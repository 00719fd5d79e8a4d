// Package events defines the rate limit decision event schema and the
// publishers that carry decisions to external observability sinks.
package events

import "time"

// SubjectDecision is the subject all decision events are published on.
const SubjectDecision = "decision"

// Decision is the canonical record of a single rate limit evaluation.
// One event is emitted per evaluated request, allowed or not.
type Decision struct {
	// Endpoint is the route pattern the rule was bound to.
	Endpoint string `json:"endpoint"`

	// Scope is the deciding dimension: "user" or "ip".
	Scope string `json:"scope"`

	// Key is the store key of the deciding scope.
	Key string `json:"key"`

	Allowed bool `json:"allowed"`

	// Blocked is set when the denial came from an active temporary
	// block rather than the window count.
	Blocked bool `json:"blocked"`

	Limit      int `json:"limit"`
	Remaining  int `json:"remaining"`
	RetryAfter int `json:"retry_after,omitempty"` // seconds

	// RequestID correlates the event with the HTTP request log line.
	RequestID string `json:"request_id,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
