package security

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Sink receives flushed event batches for external delivery. The
// transport is the caller's concern.
type Sink interface {
	Deliver(ctx context.Context, events []Event) error
}

// Filter narrows an Events query. Zero values match everything.
type Filter struct {
	Type   EventType
	Level  Level
	UserID string
	From   time.Time
	To     time.Time
	Limit  int
}

// Stats aggregates the event buffer for reporting.
type Stats struct {
	Total    int               `json:"total"`
	ByType   map[EventType]int `json:"by_type"`
	ByLevel  map[Level]int     `json:"by_level"`
	TopUsers []CountedKey      `json:"top_users"`
	TopIPs   []CountedKey      `json:"top_ips"`
}

// CountedKey pairs an aggregation key with its event count.
type CountedKey struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// EventLogger is the audit trail for every decision made by the
// sanitizer and rate limiter. Implementations must never fail the
// surrounding request: logging problems are reduced to best-effort
// console warnings.
type EventLogger interface {
	Log(eventType EventType, level Level, message string, details map[string]any, meta Metadata)

	LogAuth(eventType EventType, identity Identity, reason string)
	LogAccess(granted bool, identity Identity, endpoint, method string, details map[string]any)
	LogRateLimit(eventType EventType, identity Identity, endpoint string, verdict Verdict)
	LogSanitization(level Level, identity Identity, field string, problems []string)
	LogInjectionAttempt(eventType EventType, identity Identity, field, value string)
	LogSuspiciousActivity(identity Identity, description string)
	LogSystemError(identity Identity, endpoint string, err error)

	Events(f Filter) []Event
	SecurityStats(since time.Time) Stats
	Cleanup(maxAge time.Duration) int
	Flush()
	Stop()
}

// BufferedLoggerConfig tunes the buffered logger.
type BufferedLoggerConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	MaxBuffered   int
	MaxRetries    int
	Console       bool
}

// DefaultBufferedLoggerConfig returns the standard tuning.
func DefaultBufferedLoggerConfig() BufferedLoggerConfig {
	return BufferedLoggerConfig{
		BatchSize:     50,
		FlushInterval: 30 * time.Second,
		MaxBuffered:   10000,
		MaxRetries:    3,
		Console:       true,
	}
}

// BufferedLogger keeps an append-only history for queries and stats,
// mirrors events to the console, and periodically flushes a separate
// delivery queue to a Sink. Clearing the delivery queue never affects
// the queryable history.
type BufferedLogger struct {
	mu      sync.Mutex
	history []Event
	pending []bufferedEvent

	cfg     BufferedLoggerConfig
	sink    Sink
	console *logrus.Logger

	flushCh   chan struct{}
	stopFlush chan struct{}
	wg        sync.WaitGroup
	now       func() time.Time
}

type bufferedEvent struct {
	event   Event
	retries int
}

// NewBufferedLogger creates a logger and starts its flush loop. sink may
// be nil, in which case flushed batches are discarded. Call Stop on
// shutdown; Stop performs a final flush.
func NewBufferedLogger(cfg BufferedLoggerConfig, sink Sink) *BufferedLogger {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.MaxBuffered <= 0 {
		cfg.MaxBuffered = 10000
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	console := logrus.New()
	console.SetFormatter(&logrus.TextFormatter{ForceColors: true, FullTimestamp: true})

	l := &BufferedLogger{
		cfg:       cfg,
		sink:      sink,
		console:   console,
		flushCh:   make(chan struct{}, 1),
		stopFlush: make(chan struct{}),
		now:       time.Now,
	}
	l.wg.Add(1)
	go l.flushLoop()
	return l
}

// Log records one event. It never blocks on the sink and never returns
// an error to the caller.
func (l *BufferedLogger) Log(eventType EventType, level Level, message string, details map[string]any, meta Metadata) {
	now := l.now()
	event := Event{
		ID:        newEventID(now),
		Timestamp: now,
		Type:      eventType,
		Level:     level,
		Message:   message,
		Details:   details,
		Metadata:  meta,
	}

	if l.cfg.Console {
		l.emit(event)
	}

	l.mu.Lock()
	l.history = append(l.history, event)
	if len(l.history) > l.cfg.MaxBuffered {
		l.history = l.history[len(l.history)-l.cfg.MaxBuffered:]
	}
	l.pending = append(l.pending, bufferedEvent{event: event})
	if len(l.pending) > l.cfg.MaxBuffered {
		l.pending = l.pending[len(l.pending)-l.cfg.MaxBuffered:]
	}
	full := len(l.pending) >= l.cfg.BatchSize
	l.mu.Unlock()

	if full {
		// Non-blocking nudge; the flush loop drains off the request path.
		select {
		case l.flushCh <- struct{}{}:
		default:
		}
	}
}

func (l *BufferedLogger) emit(e Event) {
	fields := logrus.Fields{
		"event_id":   e.ID,
		"event_type": e.Type,
	}
	if e.Metadata.UserID != "" {
		fields["user_id"] = e.Metadata.UserID
	}
	if e.Metadata.IPAddress != "" {
		fields["ip"] = e.Metadata.IPAddress
	}
	if e.Metadata.Endpoint != "" {
		fields["endpoint"] = e.Metadata.Endpoint
	}
	entry := l.console.WithFields(fields)
	switch e.Level {
	case LevelLow:
		entry.Info(e.Message)
	case LevelMedium:
		entry.Warn(e.Message)
	case LevelHigh, LevelCritical:
		entry.Error(e.Message)
	default:
		entry.Info(e.Message)
	}
}

// LogAuth records an authentication-related event. Severity follows the
// event type: failures are medium, successes low.
func (l *BufferedLogger) LogAuth(eventType EventType, identity Identity, reason string) {
	level := LevelLow
	message := string(eventType)
	var details map[string]any
	switch eventType {
	case EventLoginFailure, EventRegistrationFailure:
		level = LevelMedium
	}
	if reason != "" {
		details = map[string]any{"reason": reason}
		message = fmt.Sprintf("%s: %s", eventType, reason)
	}
	l.Log(eventType, level, message, details, identity.Metadata())
}

// LogAccess records an access-granted or access-denied decision.
func (l *BufferedLogger) LogAccess(granted bool, identity Identity, endpoint, method string, details map[string]any) {
	meta := identity.Metadata()
	meta.Endpoint = endpoint
	meta.Method = method
	if granted {
		l.Log(EventAccessGranted, LevelLow, "access granted to "+endpoint, details, meta)
		return
	}
	l.Log(EventAccessDenied, LevelMedium, "access denied to "+endpoint, details, meta)
}

// LogRateLimit records a rate-limit decision with its verdict details.
func (l *BufferedLogger) LogRateLimit(eventType EventType, identity Identity, endpoint string, verdict Verdict) {
	meta := identity.Metadata()
	meta.Endpoint = endpoint
	level := LevelMedium
	if eventType == EventRateLimitBlocked {
		level = LevelHigh
	}
	l.Log(eventType, level, fmt.Sprintf("%s for %s", eventType, identity.Key()), map[string]any{
		"remaining_attempts": verdict.Remaining,
		"reset_time":         verdict.ResetAt,
		"retry_after":        verdict.RetryAfter.Seconds(),
	}, meta)
}

// LogSanitization records sanitizer findings for one field.
func (l *BufferedLogger) LogSanitization(level Level, identity Identity, field string, problems []string) {
	eventType := EventSanitizationWarning
	if level == LevelHigh || level == LevelMedium {
		eventType = EventSanitizationError
	}
	l.Log(eventType, level, "sanitization issues in field "+field, map[string]any{
		"field":    field,
		"problems": problems,
	}, identity.Metadata())
}

// LogInjectionAttempt records a detected SQL-injection or XSS attempt.
// The value has already been sanitized and is safe to include.
func (l *BufferedLogger) LogInjectionAttempt(eventType EventType, identity Identity, field, value string) {
	l.Log(eventType, LevelHigh, fmt.Sprintf("%s in field %s", eventType, field), map[string]any{
		"field":           field,
		"sanitized_value": value,
	}, identity.Metadata())
}

// LogSuspiciousActivity records behavior that does not fit a narrower
// event type.
func (l *BufferedLogger) LogSuspiciousActivity(identity Identity, description string) {
	l.Log(EventSuspiciousActivity, LevelHigh, description, nil, identity.Metadata())
}

// LogSystemError records an unexpected pipeline failure. The error text
// goes to the log only, never to the caller.
func (l *BufferedLogger) LogSystemError(identity Identity, endpoint string, err error) {
	meta := identity.Metadata()
	meta.Endpoint = endpoint
	l.Log(EventSystemError, LevelCritical, "internal error serving "+endpoint, map[string]any{
		"error": err.Error(),
	}, meta)
}

// Events returns buffered events matching f, newest first.
func (l *BufferedLogger) Events(f Filter) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, 0, len(l.history))
	for i := len(l.history) - 1; i >= 0; i-- {
		e := l.history[i]
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.Level != "" && e.Level != f.Level {
			continue
		}
		if f.UserID != "" && e.Metadata.UserID != f.UserID {
			continue
		}
		if !f.From.IsZero() && e.Timestamp.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.Timestamp.After(f.To) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// SecurityStats aggregates buffered events since the given time (zero
// means all).
func (l *BufferedLogger) SecurityStats(since time.Time) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := Stats{
		ByType:  make(map[EventType]int),
		ByLevel: make(map[Level]int),
	}
	users := make(map[string]int)
	ips := make(map[string]int)

	for _, e := range l.history {
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}
		stats.Total++
		stats.ByType[e.Type]++
		stats.ByLevel[e.Level]++
		if e.Metadata.UserID != "" {
			users[e.Metadata.UserID]++
		}
		if e.Metadata.IPAddress != "" {
			ips[e.Metadata.IPAddress]++
		}
	}

	stats.TopUsers = topCounts(users, 10)
	stats.TopIPs = topCounts(ips, 10)
	return stats
}

func topCounts(counts map[string]int, limit int) []CountedKey {
	out := make([]CountedKey, 0, len(counts))
	for k, n := range counts {
		out = append(out, CountedKey{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Cleanup drops buffered events older than maxAge and reports how many
// were removed.
func (l *BufferedLogger) Cleanup(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxAge)
	kept := l.history[:0]
	removed := 0
	for _, e := range l.history {
		if e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	l.history = kept
	return removed
}

// Flush delivers the pending queue to the sink synchronously. Failures
// re-queue a copy of the batch at the front of the queue; each batch is
// retried at most MaxRetries times before being dropped.
func (l *BufferedLogger) Flush() {
	if l.sink == nil {
		l.mu.Lock()
		l.pending = l.pending[:0]
		l.mu.Unlock()
		return
	}

	l.mu.Lock()
	if len(l.pending) == 0 {
		l.mu.Unlock()
		return
	}
	batch := make([]bufferedEvent, len(l.pending))
	copy(batch, l.pending)
	l.pending = l.pending[:0]
	l.mu.Unlock()

	events := make([]Event, len(batch))
	for i, be := range batch {
		events[i] = be.event
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.sink.Deliver(ctx, events); err == nil {
		return
	} else if l.cfg.Console {
		l.console.Warnf("event flush failed, re-queueing %d events: %v", len(batch), err)
	}

	// Prepend only the failed copy, never the live buffer, so events that
	// arrived during the failed delivery are not duplicated.
	requeue := batch[:0]
	dropped := 0
	for _, be := range batch {
		be.retries++
		if be.retries > l.cfg.MaxRetries {
			dropped++
			continue
		}
		requeue = append(requeue, be)
	}
	if dropped > 0 && l.cfg.Console {
		l.console.Warnf("dropping %d events after %d failed deliveries", dropped, l.cfg.MaxRetries)
	}

	l.mu.Lock()
	l.pending = append(requeue, l.pending...)
	if len(l.pending) > l.cfg.MaxBuffered {
		l.pending = l.pending[len(l.pending)-l.cfg.MaxBuffered:]
	}
	l.mu.Unlock()
}

func (l *BufferedLogger) flushLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Flush()
		case <-l.flushCh:
			l.Flush()
		case <-l.stopFlush:
			l.Flush()
			return
		}
	}
}

// Stop terminates the flush loop after a final flush.
func (l *BufferedLogger) Stop() {
	close(l.stopFlush)
	l.wg.Wait()
}
