package ports

import (
	"context"

	"github.com/tokengate/gatekeeper/internal/core/domain"
)

// OperatorRepository defines persistence for staff accounts.
type OperatorRepository interface {
	Create(ctx context.Context, op *domain.Operator) (*domain.Operator, error)
	FindByUsername(ctx context.Context, username string) (*domain.Operator, error)
}

// AuthService handles operator registration and login.
type AuthService interface {
	Register(ctx context.Context, username, password, role string) (*domain.Operator, error)
	Login(ctx context.Context, username, password string) (string, *domain.Operator, error)
}
