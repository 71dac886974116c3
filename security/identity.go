package security

import "github.com/google/uuid"

// Identity is the caller identity supplied by the auth layer. UserID is
// uuid.Nil for anonymous traffic.
type Identity struct {
	UserID    uuid.UUID
	SessionID string
	IPAddress string
	UserAgent string
}

// Key returns the rate-limit/log correlation key for this caller.
// Authenticated callers are keyed by user id so they never collide with
// anonymous traffic from the same address.
func (id Identity) Key() string {
	if id.UserID != uuid.Nil {
		return "user:" + id.UserID.String()
	}
	return "ip:" + id.IPAddress
}

// Metadata converts the identity into event metadata.
func (id Identity) Metadata() Metadata {
	m := Metadata{
		SessionID: id.SessionID,
		IPAddress: id.IPAddress,
		UserAgent: id.UserAgent,
	}
	if id.UserID != uuid.Nil {
		m.UserID = id.UserID.String()
	}
	return m
}
