// Package security implements the request-validation and abuse-control
// pipeline every form submission and API call passes through: input
// sanitization, sliding-window rate limiting with temporary blocking,
// buffered security-event logging, and the form processor that ties
// them together.
package security

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates every security-relevant occurrence the logger
// can record. The set is closed: call sites pick from these constants
// rather than inventing ad-hoc strings.
type EventType string

const (
	EventLoginSuccess        EventType = "LOGIN_SUCCESS"
	EventLoginFailure        EventType = "LOGIN_FAILURE"
	EventLogout              EventType = "LOGOUT"
	EventRegistrationSuccess EventType = "REGISTRATION_SUCCESS"
	EventRegistrationFailure EventType = "REGISTRATION_FAILURE"
	EventAccessGranted       EventType = "ACCESS_GRANTED"
	EventAccessDenied        EventType = "ACCESS_DENIED"
	EventPermissionDenied    EventType = "PERMISSION_DENIED"
	EventRateLimitExceeded   EventType = "RATE_LIMIT_EXCEEDED"
	EventRateLimitBlocked    EventType = "RATE_LIMIT_BLOCKED"
	EventSanitizationWarning EventType = "SANITIZATION_WARNING"
	EventSanitizationError   EventType = "SANITIZATION_ERROR"
	EventMaliciousInput      EventType = "MALICIOUS_INPUT_DETECTED"
	EventSQLInjectionAttempt EventType = "SQL_INJECTION_ATTEMPT"
	EventXSSAttempt          EventType = "XSS_ATTEMPT"
	EventSuspiciousActivity  EventType = "SUSPICIOUS_ACTIVITY"
	EventSystemError         EventType = "SYSTEM_ERROR"
	EventConfigChange        EventType = "CONFIGURATION_CHANGE"
)

// Level is the severity assigned to an event by its call site.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Metadata carries the request context an event was recorded under.
// All fields are optional.
type Metadata struct {
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	Method    string `json:"method,omitempty"`
}

// Event is a single entry in the security audit trail.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"event_type"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Metadata  Metadata       `json:"metadata"`
}

func newEventID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.New().String()[:8])
}
