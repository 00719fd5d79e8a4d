package ratelimit

import (
	"context"
	"time"
)

// DualLimiter evaluates a request against both its user key and its
// IP key and denies if either scope denies. Per-user limiting stops
// an abusive account across IP rotation; per-IP limiting stops
// unauthenticated or credential-stuffing abuse regardless of account.
type DualLimiter struct {
	store Store
}

// NewDualLimiter creates a limiter on top of the given store.
func NewDualLimiter(store Store) *DualLimiter {
	return &DualLimiter{store: store}
}

// Evaluate checks the request identified by (userID, ip) against the
// rule. userID may be empty for unauthenticated routes, in which case
// only the IP scope applies. now is read once by the caller so the
// timestamps observed by the store are monotone per key.
//
// Scopes are evaluated one at a time: active blocks first (user, then
// IP), then the user window, then the IP window. When the user scope
// admits but the IP scope then denies, the user-scope timestamp is
// not rolled back. That slight over-count on the passing scope is
// deliberate; committing both scopes transactionally would require
// holding two keys' locks at once and buys little.
func (l *DualLimiter) Evaluate(ctx context.Context, userID, ip string, rule Rule, now time.Time) (Decision, error) {
	var userKey string
	if userID != "" {
		userKey = UserKey(userID)
	}
	ipKey := IPKey(ip)

	if userKey != "" {
		if dec, blocked, err := l.checkBlock(ctx, userKey, ScopeUser, rule.UserLimit, now); err != nil {
			return Decision{}, err
		} else if blocked {
			return dec, nil
		}
	}
	if dec, blocked, err := l.checkBlock(ctx, ipKey, ScopeIP, rule.IPLimit, now); err != nil {
		return Decision{}, err
	} else if blocked {
		return dec, nil
	}

	var userDec Decision
	hasUser := userKey != ""
	if hasUser {
		var err error
		userDec, err = l.store.Take(ctx, userKey, now, rule.UserLimit, rule.Window)
		if err != nil {
			return Decision{}, err
		}
		if !userDec.Allowed {
			if err := l.applyBlock(ctx, userKey, rule, now); err != nil {
				return Decision{}, err
			}
			userDec.Scope = ScopeUser
			return userDec, nil
		}
	}

	ipDec, err := l.store.Take(ctx, ipKey, now, rule.IPLimit, rule.Window)
	if err != nil {
		return Decision{}, err
	}
	if !ipDec.Allowed {
		if err := l.applyBlock(ctx, ipKey, rule, now); err != nil {
			return Decision{}, err
		}
		ipDec.Scope = ScopeIP
		return ipDec, nil
	}

	// Both passed: report the tighter scope.
	ipDec.Scope = ScopeIP
	if hasUser && userDec.Remaining < ipDec.Remaining {
		userDec.Scope = ScopeUser
		return userDec, nil
	}
	return ipDec, nil
}

// Unblock removes an active block from a key. Administrative surface;
// exposed through the admin handler.
func (l *DualLimiter) Unblock(ctx context.Context, key string) error {
	return l.store.Unblock(ctx, key)
}

// Status reports whether a key is currently blocked.
func (l *DualLimiter) Status(ctx context.Context, key string, now time.Time) (time.Time, bool, error) {
	return l.store.IsBlocked(ctx, key, now)
}

func (l *DualLimiter) checkBlock(ctx context.Context, key string, scope Scope, limit int, now time.Time) (Decision, bool, error) {
	until, blocked, err := l.store.IsBlocked(ctx, key, now)
	if err != nil {
		return Decision{}, false, err
	}
	if !blocked {
		return Decision{}, false, nil
	}
	return Decision{
		Allowed:    false,
		Scope:      scope,
		Limit:      limit,
		RetryAfter: until.Sub(now),
		ResetAt:    until,
		Blocked:    true,
	}, true, nil
}

func (l *DualLimiter) applyBlock(ctx context.Context, key string, rule Rule, now time.Time) error {
	if rule.BlockFor <= 0 {
		return nil
	}
	return l.store.Block(ctx, key, now.Add(rule.BlockFor))
}
