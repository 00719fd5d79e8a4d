// Package ratelimit implements sliding-window rate limiting with
// independent per-user and per-IP scopes and temporary blocking.
package ratelimit

import (
	"context"
	"time"
)

// Scope identifies the dimension a limit decision was made on.
type Scope string

const (
	ScopeNone Scope = ""
	ScopeUser Scope = "user"
	ScopeIP   Scope = "ip"
)

// Decision is the outcome of evaluating a single request.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Scope is the dimension that produced the decision. For an
	// allowed request this is the scope with the fewest remaining
	// requests; for a denial it is the violated scope.
	Scope Scope

	// Limit is the configured limit of the deciding scope.
	Limit int

	// Remaining is the number of requests left in the window of the
	// deciding scope. Zero when denied.
	Remaining int

	// RetryAfter is how long the caller should wait before retrying.
	// Zero when allowed.
	RetryAfter time.Duration

	// ResetAt is when the oldest in-window request ages out (or the
	// block expires) for the deciding scope.
	ResetAt time.Time

	// Blocked reports whether the denial came from an active
	// temporary block rather than the window count.
	Blocked bool
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds,
// suitable for the Retry-After header. Always at least 1 for a denial.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Store is the atomic window store the limiter runs against. The
// check-and-record in Take must be atomic per key: two concurrent
// calls for the same key must never both admit when only one slot
// remains. Implementations are the in-memory sharded store for
// single-instance deployments and the Redis store for horizontally
// scaled ones.
type Store interface {
	// Take filters the key's window to [now-window, now], admits the
	// request if fewer than limit timestamps remain, and records the
	// request on admission. Denied requests are not recorded.
	Take(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (Decision, error)

	// IsBlocked reports whether the key is under a temporary block at
	// now, and until when. An expired block is treated as absent.
	IsBlocked(ctx context.Context, key string, now time.Time) (time.Time, bool, error)

	// Block places or extends a temporary block on the key. Extending
	// always moves the expiry forward from the latest violation.
	Block(ctx context.Context, key string, until time.Time) error

	// Unblock removes any block on the key. Administrative operation;
	// normal expiry happens via IsBlocked.
	Unblock(ctx context.Context, key string) error
}

// Stoppable extends Store with a Stop method for implementations that
// run background goroutines.
type Stoppable interface {
	Store
	Stop()
}

// UserKey builds the store key for the user scope.
func UserKey(userID string) string { return "user:" + userID }

// IPKey builds the store key for the IP scope.
func IPKey(ip string) string { return "ip:" + ip }
