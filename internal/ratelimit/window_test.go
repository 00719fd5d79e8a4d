package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAndRecord_AdmitsUpToLimit(t *testing.T) {
	base := time.Unix(1000, 0)
	var stamps []time.Time

	for i := 0; i < 5; i++ {
		var dec Decision
		stamps, dec = checkAndRecord(stamps, base.Add(time.Duration(i)*time.Second), 5, time.Minute)
		assert.True(t, dec.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5-i-1, dec.Remaining, "request %d remaining", i+1)
	}

	_, dec := checkAndRecord(stamps, base.Add(10*time.Second), 5, time.Minute)
	assert.False(t, dec.Allowed, "request over limit should be denied")
	assert.Equal(t, 0, dec.Remaining)
}

func TestCheckAndRecord_WindowCorrectness(t *testing.T) {
	// limit=5, window=60s. Five requests at t=0, one more at
	// t=30 denied, the next at t=61 allowed after the oldest ages out.
	base := time.Unix(1000, 0)
	var stamps []time.Time
	var dec Decision

	for i := 0; i < 5; i++ {
		stamps, dec = checkAndRecord(stamps, base, 5, time.Minute)
		require.True(t, dec.Allowed)
	}

	stamps, dec = checkAndRecord(stamps, base.Add(30*time.Second), 5, time.Minute)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 30*time.Second, dec.RetryAfter)

	stamps, dec = checkAndRecord(stamps, base.Add(61*time.Second), 5, time.Minute)
	assert.True(t, dec.Allowed, "should be allowed after the whole batch ages out")
	_ = stamps
}

func TestCheckAndRecord_BoundaryNonBurst(t *testing.T) {
	// limit requests just before a naive fixed-window boundary
	// plus limit more just after must not double the admitted count.
	base := time.Unix(1000, 0)
	var stamps []time.Time
	var dec Decision

	at := base.Add(59900 * time.Millisecond)
	for i := 0; i < 5; i++ {
		stamps, dec = checkAndRecord(stamps, at, 5, time.Minute)
		require.True(t, dec.Allowed, "pre-boundary request %d", i+1)
	}

	at = base.Add(60100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		stamps, dec = checkAndRecord(stamps, at, 5, time.Minute)
		assert.False(t, dec.Allowed, "post-boundary request %d must be denied", i+1)
	}
}

func TestCheckAndRecord_DeniedNotRecorded(t *testing.T) {
	base := time.Unix(1000, 0)
	var stamps []time.Time

	for i := 0; i < 3; i++ {
		stamps, _ = checkAndRecord(stamps, base, 3, time.Minute)
	}
	require.Len(t, stamps, 3)

	// Denials must not grow the log; memory stays O(limit).
	for i := 0; i < 100; i++ {
		stamps, _ = checkAndRecord(stamps, base.Add(time.Second), 3, time.Minute)
	}
	assert.Len(t, stamps, 3)
}

func TestCheckAndRecord_ZeroLimitAlwaysDenies(t *testing.T) {
	base := time.Unix(1000, 0)
	_, dec := checkAndRecord(nil, base, 0, time.Minute)
	assert.False(t, dec.Allowed)
	assert.Equal(t, time.Minute, dec.RetryAfter)
}

func TestCheckAndRecord_RetryAfterTracksOldest(t *testing.T) {
	base := time.Unix(1000, 0)
	var stamps []time.Time
	var dec Decision

	stamps, _ = checkAndRecord(stamps, base, 2, time.Minute)
	stamps, _ = checkAndRecord(stamps, base.Add(20*time.Second), 2, time.Minute)

	_, dec = checkAndRecord(stamps, base.Add(45*time.Second), 2, time.Minute)
	require.False(t, dec.Allowed)
	assert.Equal(t, 15*time.Second, dec.RetryAfter, "retry until the oldest stamp ages out")
	assert.Equal(t, base.Add(time.Minute), dec.ResetAt)
}

func TestDecision_RetryAfterSeconds(t *testing.T) {
	tests := []struct {
		name     string
		d        time.Duration
		expected int
	}{
		{"zero", 0, 0},
		{"sub-second rounds up", 300 * time.Millisecond, 1},
		{"exact seconds", 45 * time.Second, 45},
		{"rounds up", 45*time.Second + time.Millisecond, 46},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := Decision{RetryAfter: tt.d}
			assert.Equal(t, tt.expected, dec.RetryAfterSeconds())
		})
	}
}
