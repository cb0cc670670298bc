package access

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tokengate/gatekeeper/internal/core/ports"
)

// NoopManager logs actions instead of delivering them. Used when no bridge
// URL is configured, typically in local development.
type NoopManager struct {
	log zerolog.Logger
}

var _ ports.AccessManager = (*NoopManager)(nil)

func NewNoopManager(log zerolog.Logger) *NoopManager {
	return &NoopManager{log: log}
}

func (m *NoopManager) GrantAccess(_ context.Context, externalID, groupID string) error {
	m.log.Info().Str("external_id", externalID).Str("group_id", groupID).Msg("noop access: grant")
	return nil
}

func (m *NoopManager) RevokeAccess(_ context.Context, externalID, groupID string) error {
	m.log.Info().Str("external_id", externalID).Str("group_id", groupID).Msg("noop access: revoke")
	return nil
}

func (m *NoopManager) Notify(_ context.Context, externalID, text string) error {
	m.log.Info().Str("external_id", externalID).Str("text", text).Msg("noop access: notify")
	return nil
}
