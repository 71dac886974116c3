package security

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProcessor(t *testing.T) (*FormProcessor, *MemoryLimiter, *BufferedLogger) {
	t.Helper()
	limiter, _ := testLimiter(time.Now())
	logger := NewBufferedLogger(BufferedLoggerConfig{}, nil)
	t.Cleanup(logger.Stop)
	return NewFormProcessor(limiter, logger, nil), limiter, logger
}

func TestProcessValidForm(t *testing.T) {
	p, limiter, logger := testProcessor(t)
	caller := Identity{UserID: uuid.New(), IPAddress: "10.0.0.1"}

	result := p.Process(ClassForm, map[string]any{
		"first_name": "Ana",
		"email":      "Ana@Example.com",
		"credits":    5,
	}, map[string]FieldKind{
		"first_name": FieldName,
		"email":      FieldEmail,
	}, caller)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "Ana", result.Sanitized["first_name"])
	assert.Equal(t, "ana@example.com", result.Sanitized["email"], "emails are normalized")
	assert.Equal(t, 5, result.Sanitized["credits"], "non-string fields pass through")

	require.NotNil(t, result.RateLimit)
	assert.True(t, result.RateLimit.Allowed)

	// Exactly one attempt counted for the submission.
	formPolicy := DefaultPolicies()[ClassForm]
	assert.Equal(t, formPolicy.MaxAttempts-1, limiter.Info(caller.Key(), formPolicy).Remaining)

	granted := logger.Events(Filter{Type: EventAccessGranted})
	assert.Len(t, granted, 1)
}

func TestProcessXSSField(t *testing.T) {
	p, _, logger := testProcessor(t)
	caller := Identity{IPAddress: "10.0.0.1"}

	result := p.Process(ClassForm, map[string]any{
		"notes": "<script>alert(1)</script>note",
	}, map[string]FieldKind{
		"notes": FieldNotes,
	}, caller)

	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors["notes"])
	assert.Equal(t, "note", result.Sanitized["notes"], "value is still sanitized and safe")

	assert.Len(t, logger.Events(Filter{Type: EventXSSAttempt}), 1)
	assert.Len(t, logger.Events(Filter{Type: EventAccessDenied}), 1)
}

func TestProcessSQLInjectionField(t *testing.T) {
	p, _, logger := testProcessor(t)
	caller := Identity{IPAddress: "10.0.0.1"}

	result := p.Process(ClassForm, map[string]any{
		"notes": "x' OR 1=1 --",
	}, map[string]FieldKind{
		"notes": FieldNotes,
	}, caller)

	assert.False(t, result.Valid)
	events := logger.Events(Filter{Type: EventSQLInjectionAttempt})
	require.Len(t, events, 1)
	assert.False(t, ContainsSQLInjection(events[0].Details["sanitized_value"].(string)),
		"logged value must already be sanitized")
}

func TestProcessLoginClassRules(t *testing.T) {
	p, _, _ := testProcessor(t)
	caller := Identity{IPAddress: "10.0.0.1"}

	result := p.Process(ClassLogin, map[string]any{
		"email":    "user@example.com",
		"password": "abc",
	}, map[string]FieldKind{
		"email":    FieldEmail,
		"password": FieldPassword,
	}, caller)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors["password"], "password must be at least 6 characters")
	assert.Empty(t, result.Errors["email"])
}

func TestProcessRegisterClassRules(t *testing.T) {
	p, _, _ := testProcessor(t)
	caller := Identity{IPAddress: "10.0.0.1"}

	result := p.Process(ClassRegister, map[string]any{
		"email":           "user@example.com",
		"password":        "longenough1",
		"confirmPassword": "different1",
	}, map[string]FieldKind{
		"email":           FieldEmail,
		"password":        FieldPassword,
		"confirmPassword": FieldPassword,
	}, caller)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors["confirmPassword"], "passwords do not match")
}

func TestProcessFormClassLengthCap(t *testing.T) {
	p, _, _ := testProcessor(t)
	caller := Identity{IPAddress: "10.0.0.1"}

	result := p.Process(ClassForm, map[string]any{
		"description": strings.Repeat("a", 1500),
	}, map[string]FieldKind{
		"description": FieldDescription,
	}, caller)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors["description"], "field exceeds maximum length of 1000 characters")
}

// Six bad login submissions from one caller within the window: the
// sixth is refused by the abuse gate with retry timing, the log shows
// exactly one rate-limit-exceeded event and five denied submissions.
func TestProcessLoginLockout(t *testing.T) {
	p, _, logger := testProcessor(t)
	caller := Identity{IPAddress: "172.16.0.9"}
	bad := map[string]any{"email": "nope", "password": "x"}
	fields := map[string]FieldKind{"email": FieldEmail, "password": FieldPassword}

	for i := 1; i <= 5; i++ {
		result := p.Process(ClassLogin, bad, fields, caller)
		assert.False(t, result.Valid, "call %d fails validation", i)
		assert.NotContains(t, result.Errors, "_rateLimit", "call %d is not rate limited", i)
	}

	result := p.Process(ClassLogin, bad, fields, caller)
	assert.False(t, result.Valid)
	require.Contains(t, result.Errors, "_rateLimit")
	require.NotNil(t, result.RateLimit)
	assert.Greater(t, result.RateLimit.RetryAfter, time.Duration(0))

	assert.Len(t, logger.Events(Filter{Type: EventRateLimitExceeded}), 1)
	assert.Len(t, logger.Events(Filter{Type: EventAccessDenied}), 5)

	// Once the block is active further calls report it without counting.
	result = p.Process(ClassLogin, bad, fields, caller)
	assert.Contains(t, result.Errors, "_rateLimit")
	assert.Len(t, logger.Events(Filter{Type: EventRateLimitBlocked}), 1)
	assert.Len(t, logger.Events(Filter{Type: EventRateLimitExceeded}), 1)
}

type panickyLimiter struct{}

func (panickyLimiter) Check(string, Policy, bool) Verdict   { panic("boom") }
func (panickyLimiter) RecordSuccess(string, Policy) Verdict { panic("boom") }
func (panickyLimiter) RecordFailure(string, Policy) Verdict { panic("boom") }
func (panickyLimiter) Info(string, Policy) Verdict          { panic("boom") }
func (panickyLimiter) Reset(string)                         {}
func (panickyLimiter) Stop()                                {}

func TestProcessPanicContained(t *testing.T) {
	logger := NewBufferedLogger(BufferedLoggerConfig{}, nil)
	defer logger.Stop()
	p := NewFormProcessor(panickyLimiter{}, logger, nil)

	result := p.Process(ClassForm, map[string]any{"a": "b"}, nil, Identity{IPAddress: "10.0.0.1"})

	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "_system")
	assert.NotContains(t, result.Errors["_system"][0], "boom", "internal detail never leaks to the caller")
	assert.Len(t, logger.Events(Filter{Type: EventSystemError}), 1)
}

func TestProcessUnknownClassFallsBack(t *testing.T) {
	p, _, _ := testProcessor(t)
	assert.Equal(t, DefaultPolicies()[ClassForm], p.Policy(EndpointClass("mystery")))
}
