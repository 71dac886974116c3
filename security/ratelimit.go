package security

import (
	"sync"
	"time"
)

// Policy governs one endpoint class. The numbers are tunable config,
// not mechanism; defaults live in DefaultPolicies.
type Policy struct {
	MaxAttempts    int
	Window         time.Duration
	BlockDuration  time.Duration
	SkipSuccessful bool
	SkipFailed     bool
}

// EndpointClass names a group of endpoints sharing a rate-limit policy.
type EndpointClass string

const (
	ClassLogin         EndpointClass = "login"
	ClassRegister      EndpointClass = "register"
	ClassForm          EndpointClass = "form"
	ClassAPI           EndpointClass = "api"
	ClassPasswordReset EndpointClass = "password_reset"
)

// DefaultPolicies returns the built-in policy table. Login and
// registration tolerate very few attempts before a long block; plain API
// reads are generous and never block.
func DefaultPolicies() map[EndpointClass]Policy {
	return map[EndpointClass]Policy{
		ClassLogin:         {MaxAttempts: 5, Window: 15 * time.Minute, BlockDuration: 30 * time.Minute},
		ClassRegister:      {MaxAttempts: 3, Window: time.Hour, BlockDuration: 2 * time.Hour},
		ClassForm:          {MaxAttempts: 10, Window: 5 * time.Minute, BlockDuration: 15 * time.Minute},
		ClassAPI:           {MaxAttempts: 100, Window: time.Minute, SkipSuccessful: true},
		ClassPasswordReset: {MaxAttempts: 3, Window: time.Hour, BlockDuration: 4 * time.Hour},
	}
}

// Verdict is the outcome of a rate-limit check.
type Verdict struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int           `json:"remaining_attempts"`
	ResetAt    time.Time     `json:"reset_time"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// Limiter tracks attempt counts per identifier. Implementations must be
// safe for concurrent use.
type Limiter interface {
	Check(identifier string, policy Policy, wasSuccess bool) Verdict
	RecordSuccess(identifier string, policy Policy) Verdict
	RecordFailure(identifier string, policy Policy) Verdict
	Info(identifier string, policy Policy) Verdict
	Reset(identifier string)
	Stop()
}

type limitEntry struct {
	attempts     int
	windowStart  time.Time
	lastAttempt  time.Time
	blockedUntil time.Time
}

// MemoryLimiter is the in-process Limiter. State is not persisted; a
// restart resets all counters, which is an accepted limitation of
// single-instance deployment.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*limitEntry

	sweepInterval time.Duration
	entryTTL      time.Duration
	stopSweep     chan struct{}
	now           func() time.Time
}

// NewMemoryLimiter creates a limiter and starts its background sweep.
// Call Stop on shutdown.
func NewMemoryLimiter() *MemoryLimiter {
	l := &MemoryLimiter{
		entries:       make(map[string]*limitEntry),
		sweepInterval: 5 * time.Minute,
		entryTTL:      24 * time.Hour,
		stopSweep:     make(chan struct{}),
		now:           time.Now,
	}
	go l.sweepLoop()
	return l
}

// Check runs one attempt for identifier against policy and returns the
// verdict. A success is not counted when the policy skips successes;
// likewise for failures.
func (l *MemoryLimiter) Check(identifier string, policy Policy, wasSuccess bool) Verdict {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.check(identifier, policy, wasSuccess, true)
}

// RecordSuccess counts a successful attempt.
func (l *MemoryLimiter) RecordSuccess(identifier string, policy Policy) Verdict {
	return l.Check(identifier, policy, true)
}

// RecordFailure counts a failed attempt.
func (l *MemoryLimiter) RecordFailure(identifier string, policy Policy) Verdict {
	return l.Check(identifier, policy, false)
}

// Info reports the current verdict for identifier without mutating any
// counters.
func (l *MemoryLimiter) Info(identifier string, policy Policy) Verdict {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.check(identifier, policy, false, false)
}

// Reset forgets all state for identifier.
func (l *MemoryLimiter) Reset(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, identifier)
}

// check is the core algorithm. Caller holds the mutex.
func (l *MemoryLimiter) check(identifier string, policy Policy, wasSuccess, mutate bool) Verdict {
	now := l.now()

	entry, ok := l.entries[identifier]
	if !ok {
		entry = &limitEntry{windowStart: now}
		if mutate {
			l.entries[identifier] = entry
		}
	}

	// Active block short-circuits everything; counters stay untouched.
	if !entry.blockedUntil.IsZero() {
		if now.Before(entry.blockedUntil) {
			return Verdict{
				Allowed:    false,
				Remaining:  0,
				ResetAt:    entry.blockedUntil,
				RetryAfter: entry.blockedUntil.Sub(now),
				Reason:     "temporarily blocked",
			}
		}
		if mutate {
			entry.blockedUntil = time.Time{}
		}
	}

	// Sliding window: restart on first access after expiry.
	if now.Sub(entry.windowStart) > policy.Window {
		if mutate {
			entry.attempts = 0
			entry.windowStart = now
		} else {
			entry = &limitEntry{windowStart: now}
		}
	}

	attempts := entry.attempts
	skip := (wasSuccess && policy.SkipSuccessful) || (!wasSuccess && policy.SkipFailed)
	if mutate && !skip {
		attempts++
		entry.attempts = attempts
		entry.lastAttempt = now
	}

	resetAt := entry.windowStart.Add(policy.Window)

	// A read-only probe reports whether another attempt is available; a
	// counting call reports whether this attempt went over the limit.
	if !mutate {
		if attempts >= policy.MaxAttempts {
			return Verdict{Allowed: false, Remaining: 0, ResetAt: resetAt, Reason: "rate limit exceeded"}
		}
		return Verdict{Allowed: true, Remaining: policy.MaxAttempts - attempts, ResetAt: resetAt}
	}

	if attempts > policy.MaxAttempts {
		v := Verdict{Allowed: false, Remaining: 0, ResetAt: resetAt, Reason: "rate limit exceeded"}
		if policy.BlockDuration > 0 {
			blockedUntil := now.Add(policy.BlockDuration)
			if mutate {
				entry.blockedUntil = blockedUntil
			}
			v.ResetAt = blockedUntil
			v.RetryAfter = policy.BlockDuration
		}
		return v
	}

	remaining := policy.MaxAttempts - attempts
	if remaining < 0 {
		remaining = 0
	}
	return Verdict{Allowed: true, Remaining: remaining, ResetAt: resetAt}
}

func (l *MemoryLimiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stopSweep:
			return
		}
	}
}

// sweep deletes entries idle past the TTL and clears expired blocks.
// Entries with an expired block stay, since their window may still be
// active.
func (l *MemoryLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, entry := range l.entries {
		if now.Sub(entry.lastAttempt) > l.entryTTL {
			delete(l.entries, key)
			continue
		}
		if !entry.blockedUntil.IsZero() && now.After(entry.blockedUntil) {
			entry.blockedUntil = time.Time{}
		}
	}
}

// Stop terminates the background sweep.
func (l *MemoryLimiter) Stop() {
	close(l.stopSweep)
}
