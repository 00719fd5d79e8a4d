// Package ctxkeys provides unified context keys for the application.
// Using a dedicated type prevents collisions with keys from other
// packages.
package ctxkeys

// Key is the type for all context keys in the application.
type Key string

const (
	// Request-scoped keys
	KeyRequestID Key = "request_id"

	// Auth-scoped keys
	KeyUserID   Key = "user_id"
	KeyUsername Key = "username"
	KeyRoles    Key = "roles"
)
