package ports

import (
	"context"

	"github.com/tokengate/gatekeeper/internal/core/domain"
)

// EventRepository appends to and reads the per-member audit trail.
// The trail is for operators only; core logic never reads it back.
type EventRepository interface {
	Append(ctx context.Context, event *domain.AuditEvent) error
	// ListByExternalID returns events for a member, newest-first.
	ListByExternalID(ctx context.Context, externalID string, limit int) ([]*domain.AuditEvent, error)
}
