package identity

import (
	"context"
	"net/http"
	"strings"

	"rategate/internal/ctxkeys"
)

// Middleware requires a valid bearer token and rejects the request
// otherwise.
func (s *TokenService) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// MiddlewareOptional validates a bearer token when one is present and
// lets anonymous requests through. Anonymous requests carry no user
// ID, so only the IP scope limits them.
func (s *TokenService) MiddlewareOptional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

func (s *TokenService) authenticate(w http.ResponseWriter, r *http.Request) (*Claims, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		http.Error(w, "Authorization header required", http.StatusUnauthorized)
		return nil, false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
		return nil, false
	}

	claims, err := s.ValidateToken(parts[1])
	if err != nil {
		http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

func withClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, ctxkeys.KeyUserID, claims.Subject)
	ctx = context.WithValue(ctx, ctxkeys.KeyUsername, claims.Username)
	ctx = context.WithValue(ctx, ctxkeys.KeyRoles, claims.Roles)
	return ctx
}

// UserID returns the authenticated user ID from the context, or empty
// for anonymous requests.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxkeys.KeyUserID).(string); ok {
		return id
	}
	return ""
}
