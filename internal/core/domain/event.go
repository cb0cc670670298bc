package domain

import "time"

// EventType enumerates the audit event kinds recorded against a member.
type EventType string

const (
	EventRequested        EventType = "requested"
	EventVerified         EventType = "verified"
	EventWhitelistChanged EventType = "whitelist-changed"
	EventGroupRequested   EventType = "group-requested"
	EventGroupCleared     EventType = "group-cleared"
	EventRevoked          EventType = "revoked"
)

// AuditEvent is an append-only record of something that happened to a member.
// Events are written for operators and never read back to drive logic.
type AuditEvent struct {
	ID         string         `json:"id" bson:"_id"`
	ExternalID string         `json:"external_id" bson:"external_id"`
	Type       EventType      `json:"type" bson:"type"`
	Payload    map[string]any `json:"payload,omitempty" bson:"payload,omitempty"`
	CreatedAt  time.Time      `json:"created_at" bson:"created_at"`
}
