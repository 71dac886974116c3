package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// testLimiter returns a limiter with a controllable clock and no
// background sweep.
func testLimiter(start time.Time) (*MemoryLimiter, *time.Time) {
	now := start
	l := &MemoryLimiter{
		entries:   make(map[string]*limitEntry),
		entryTTL:  24 * time.Hour,
		stopSweep: make(chan struct{}),
		now:       func() time.Time { return now },
	}
	return l, &now
}

var loginPolicy = Policy{MaxAttempts: 5, Window: 15 * time.Minute, BlockDuration: 30 * time.Minute}

func TestLimiterCountsDownToBlock(t *testing.T) {
	l, _ := testLimiter(time.Now())

	for i := 1; i <= 5; i++ {
		v := l.RecordFailure("user:abc", loginPolicy)
		assert.True(t, v.Allowed, "attempt %d should be allowed", i)
		assert.Equal(t, 5-i, v.Remaining)
	}

	v := l.RecordFailure("user:abc", loginPolicy)
	assert.False(t, v.Allowed)
	assert.Equal(t, 0, v.Remaining)
	assert.Equal(t, "rate limit exceeded", v.Reason)
	assert.Equal(t, 30*time.Minute, v.RetryAfter)

	// Once blocked, further attempts report the block without touching
	// counters.
	v = l.RecordFailure("user:abc", loginPolicy)
	assert.False(t, v.Allowed)
	assert.Equal(t, "temporarily blocked", v.Reason)
	assert.Greater(t, v.RetryAfter, time.Duration(0))
}

func TestLimiterRemainingMonotonic(t *testing.T) {
	l, _ := testLimiter(time.Now())

	prev := loginPolicy.MaxAttempts
	for i := 0; i < 5; i++ {
		v := l.RecordFailure("ip:10.0.0.1", loginPolicy)
		assert.LessOrEqual(t, v.Remaining, prev)
		prev = v.Remaining
	}
	assert.Equal(t, 0, prev, "remaining reaches 0 exactly at the attempt cap")
}

func TestLimiterWindowReset(t *testing.T) {
	l, now := testLimiter(time.Unix(1000, 0))

	for i := 0; i < 3; i++ {
		l.RecordFailure("user:abc", loginPolicy)
	}
	assert.Equal(t, 2, l.Info("user:abc", loginPolicy).Remaining)

	// One tick past the window the counter starts over.
	*now = now.Add(loginPolicy.Window + time.Second)
	v := l.RecordFailure("user:abc", loginPolicy)
	assert.True(t, v.Allowed)
	assert.Equal(t, 4, v.Remaining)
}

func TestLimiterBlockExpires(t *testing.T) {
	l, now := testLimiter(time.Unix(1000, 0))

	for i := 0; i < 6; i++ {
		l.RecordFailure("user:abc", loginPolicy)
	}
	assert.False(t, l.Info("user:abc", loginPolicy).Allowed)

	*now = now.Add(loginPolicy.BlockDuration + time.Second)
	v := l.RecordFailure("user:abc", loginPolicy)
	assert.True(t, v.Allowed, "expired block clears on next attempt")
	assert.Equal(t, 4, v.Remaining)
}

func TestLimiterSkipSuccessful(t *testing.T) {
	l, _ := testLimiter(time.Now())
	policy := Policy{MaxAttempts: 3, Window: time.Minute, SkipSuccessful: true}

	for i := 0; i < 10; i++ {
		v := l.RecordSuccess("user:abc", policy)
		assert.True(t, v.Allowed)
		assert.Equal(t, 3, v.Remaining, "successes are not counted")
	}

	v := l.RecordFailure("user:abc", policy)
	assert.Equal(t, 2, v.Remaining, "failures still count")
}

func TestLimiterInfoDoesNotMutate(t *testing.T) {
	l, _ := testLimiter(time.Now())

	l.RecordFailure("user:abc", loginPolicy)
	for i := 0; i < 10; i++ {
		v := l.Info("user:abc", loginPolicy)
		assert.True(t, v.Allowed)
		assert.Equal(t, 4, v.Remaining)
	}

	assert.NotContains(t, l.entries, "user:never-seen")
	l.Info("user:never-seen", loginPolicy)
	assert.NotContains(t, l.entries, "user:never-seen", "read-only probe creates no entry")
}

func TestLimiterInfoDeniesAtCap(t *testing.T) {
	l, _ := testLimiter(time.Now())

	for i := 0; i < 5; i++ {
		l.RecordFailure("user:abc", loginPolicy)
	}
	v := l.Info("user:abc", loginPolicy)
	assert.False(t, v.Allowed)
	assert.Equal(t, "rate limit exceeded", v.Reason)
	// Never blocked and allowed at once.
	assert.False(t, v.Allowed && v.Reason == "temporarily blocked")
}

func TestLimiterIdentifiersIndependent(t *testing.T) {
	l, _ := testLimiter(time.Now())

	for i := 0; i < 6; i++ {
		l.RecordFailure("ip:10.0.0.1", loginPolicy)
	}
	assert.False(t, l.Info("ip:10.0.0.1", loginPolicy).Allowed)
	assert.True(t, l.Info("ip:10.0.0.2", loginPolicy).Allowed)
	assert.True(t, l.Info("user:abc", loginPolicy).Allowed)
}

func TestLimiterReset(t *testing.T) {
	l, _ := testLimiter(time.Now())

	for i := 0; i < 6; i++ {
		l.RecordFailure("user:abc", loginPolicy)
	}
	l.Reset("user:abc")
	v := l.RecordFailure("user:abc", loginPolicy)
	assert.True(t, v.Allowed)
	assert.Equal(t, 4, v.Remaining)
}

func TestLimiterSweepPurgesIdleEntries(t *testing.T) {
	l, now := testLimiter(time.Unix(1000, 0))

	l.RecordFailure("user:old", loginPolicy)
	*now = now.Add(25 * time.Hour)
	l.RecordFailure("user:fresh", loginPolicy)

	l.sweep()
	assert.NotContains(t, l.entries, "user:old")
	assert.Contains(t, l.entries, "user:fresh")
}

func TestLimiterSweepClearsExpiredBlocks(t *testing.T) {
	l, now := testLimiter(time.Unix(1000, 0))

	for i := 0; i < 6; i++ {
		l.RecordFailure("user:abc", loginPolicy)
	}
	assert.False(t, l.entries["user:abc"].blockedUntil.IsZero())

	*now = now.Add(loginPolicy.BlockDuration + time.Minute)
	l.sweep()
	assert.True(t, l.entries["user:abc"].blockedUntil.IsZero())
}

func TestLimiterStop(t *testing.T) {
	l := NewMemoryLimiter()
	l.RecordFailure("user:abc", loginPolicy)
	l.Stop()
}
