package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rategate/internal/ctxkeys"
	"rategate/internal/events"
)

// ErrorResponse is the JSON envelope returned on a denial.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details ErrorDetails `json:"details"`
}

type ErrorDetails struct {
	ViolationType Scope `json:"violationType"`
	RetryAfter    int   `json:"retryAfter"`
	Limit         int   `json:"limit"`
}

const codeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"

// UserFunc extracts the authenticated user ID from a request; empty
// means anonymous.
type UserFunc func(*http.Request) string

// Option customizes the middleware.
type Option func(*middlewareOpts)

type middlewareOpts struct {
	recorder *events.Recorder
	logger   *slog.Logger
	userFn   UserFunc
	clock    func() time.Time
}

// WithRecorder wires the fire-and-forget decision event pipeline.
func WithRecorder(r *events.Recorder) Option {
	return func(o *middlewareOpts) { o.recorder = r }
}

// WithLogger overrides the logger used for store failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *middlewareOpts) { o.logger = l }
}

// WithUserFunc overrides how the user ID is extracted. The default
// reads the ID the identity middleware put into the context.
func WithUserFunc(fn UserFunc) Option {
	return func(o *middlewareOpts) { o.userFn = fn }
}

// WithClock overrides the time source. Tests only.
func WithClock(fn func() time.Time) Option {
	return func(o *middlewareOpts) { o.clock = fn }
}

func defaultUserFunc(r *http.Request) string {
	if id, ok := r.Context().Value(ctxkeys.KeyUserID).(string); ok {
		return id
	}
	return ""
}

// Middleware wraps a handler with dual-scope rate limiting under the
// given rule. The rule must be validated at startup; Middleware
// panics on an invalid rule rather than serving unlimited traffic.
//
// Allowed requests pass through with X-RateLimit-* headers for the
// tighter scope. Denied requests are answered with 429 and a
// structured body without ever invoking the wrapped handler. Store
// failures fail open: the request proceeds and the error is logged.
func Middleware(limiter *DualLimiter, endpoint string, rule Rule, opts ...Option) func(http.Handler) http.Handler {
	if err := rule.Validate(); err != nil {
		panic("ratelimit: invalid rule for " + endpoint + ": " + err.Error())
	}

	o := middlewareOpts{
		logger: slog.Default(),
		userFn: defaultUserFunc,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := o.clock()
			userID := o.userFn(r)
			ip := GetClientIP(r)

			dec, err := limiter.Evaluate(r.Context(), userID, ip, rule, now)
			if err != nil {
				o.logger.Error("Rate limit store unavailable, failing open",
					"endpoint", endpoint,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			record(o.recorder, endpoint, userID, ip, dec, r)

			setInfoHeaders(w, dec)
			if !dec.Allowed {
				writeDenied(w, dec)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func record(rec *events.Recorder, endpoint, userID, ip string, dec Decision, r *http.Request) {
	if rec == nil {
		return
	}

	key := IPKey(ip)
	if dec.Scope == ScopeUser {
		key = UserKey(userID)
	}

	requestID, _ := r.Context().Value(ctxkeys.KeyRequestID).(string)

	rec.Record(events.Decision{
		Endpoint:   endpoint,
		Scope:      string(dec.Scope),
		Key:        key,
		Allowed:    dec.Allowed,
		Blocked:    dec.Blocked,
		Limit:      dec.Limit,
		Remaining:  dec.Remaining,
		RetryAfter: dec.RetryAfterSeconds(),
		RequestID:  requestID,
		Timestamp:  time.Now(),
	})
}

func setInfoHeaders(w http.ResponseWriter, dec Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetAt.Unix(), 10))
}

func writeDenied(w http.ResponseWriter, dec Decision) {
	message := "too many requests from your network"
	if dec.Scope == ScopeUser {
		message = "too many requests for your account"
	}

	w.Header().Set("Retry-After", strconv.Itoa(dec.RetryAfterSeconds()))
	w.Header().Set("X-RateLimit-Violation-Type", string(dec.Scope))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	resp := ErrorResponse{
		Error: ErrorBody{
			Code:    codeRateLimitExceeded,
			Message: message,
			Details: ErrorDetails{
				ViolationType: dec.Scope,
				RetryAfter:    dec.RetryAfterSeconds(),
				Limit:         dec.Limit,
			},
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("Failed to encode rate limit response", "error", err)
	}
}

// GetClientIP extracts the client IP address from the request. It
// checks X-Forwarded-For first (for proxied requests), then
// X-Real-IP, and finally falls back to RemoteAddr.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First IP is the original client.
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
