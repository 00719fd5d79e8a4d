package ratelimit

import "time"

// checkAndRecord applies the sliding-window-log algorithm to a key's
// timestamp history. It drops timestamps at or before now-window,
// admits the request if fewer than limit remain, and appends now on
// admission. The returned slice replaces the caller's history.
//
// Keeping the full log (rather than a counter per fixed window) is
// what prevents boundary bursting: a fixed-window counter admits up
// to 2x limit across a window boundary, the log never exceeds limit
// within any rolling window. Memory stays O(limit) per key because
// denied requests are not appended.
//
// The caller must hold the key's lock across the whole call.
func checkAndRecord(stamps []time.Time, now time.Time, limit int, window time.Duration) ([]time.Time, Decision) {
	windowStart := now.Add(-window)

	// Timestamps are appended in order, so the retained suffix starts
	// at the first stamp inside the window.
	idx := 0
	for idx < len(stamps) && !stamps[idx].After(windowStart) {
		idx++
	}
	kept := stamps[idx:]

	if limit <= 0 {
		return kept, Decision{
			Allowed:    false,
			Limit:      limit,
			RetryAfter: window,
			ResetAt:    now.Add(window),
		}
	}

	if len(kept) < limit {
		// Copy when dropping old entries so the backing array does not
		// pin aged-out timestamps.
		if idx > 0 {
			kept = append(make([]time.Time, 0, len(kept)+1), kept...)
		}
		kept = append(kept, now)
		return kept, Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - len(kept),
			ResetAt:   kept[0].Add(window),
		}
	}

	// Denied: retry once the oldest in-window request ages out.
	resetAt := kept[0].Add(window)
	return kept, Decision{
		Allowed:    false,
		Limit:      limit,
		RetryAfter: resetAt.Sub(now),
		ResetAt:    resetAt,
	}
}
