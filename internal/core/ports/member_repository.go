package ports

import (
	"context"

	"github.com/tokengate/gatekeeper/internal/core/domain"
)

// MemberRepository defines persistence operations for member records.
type MemberRepository interface {
	// GetOrCreate returns the record for externalID, creating a bare record
	// atomically when none exists. Concurrent first-contact events must not
	// produce duplicate records.
	GetOrCreate(ctx context.Context, externalID string) (*domain.Member, error)
	FindByExternalID(ctx context.Context, externalID string) (*domain.Member, error)
	// Update overwrites the stored record with m (matched by external id).
	Update(ctx context.Context, m *domain.Member) error
	// ListVerified returns every record with verified = true.
	ListVerified(ctx context.Context) ([]*domain.Member, error)
	// List returns records matching the filter, newest-first.
	List(ctx context.Context, filter MemberFilter) ([]*domain.Member, error)
}

// MemberFilter carries query parameters for listing members.
type MemberFilter struct {
	Verified    *bool // nil = no filter
	Whitelisted *bool // nil = no filter
	Limit       int   // <= 0 means repository default
}
