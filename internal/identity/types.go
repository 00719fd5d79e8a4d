// Package identity validates bearer tokens on inbound requests and
// exposes the authenticated user ID to the rate limiter. It is the
// upstream collaborator the limiter's user scope depends on; there is
// no user store or credential handling here.
package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the JWT claims rategate cares about. Subject
// carries the user ID.
type Claims struct {
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Config holds the token validation settings.
type Config struct {
	// PrivateKeyFile is the PEM-encoded RSA key used to sign and
	// verify tokens. Generated on first start when absent.
	PrivateKeyFile string `yaml:"private_key_file"`

	// AccessTokenTTL bounds tokens issued by GenerateToken.
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
}

// DefaultConfig returns development defaults.
func DefaultConfig() Config {
	return Config{
		PrivateKeyFile: "keys/rategate.pem",
		AccessTokenTTL: time.Hour,
	}
}
