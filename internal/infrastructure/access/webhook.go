package access

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tokengate/gatekeeper/internal/core/ports"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookManager drives the chat bridge over plain HTTP. Each action maps to
// one POST against the bridge base URL.
type WebhookManager struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

var _ ports.AccessManager = (*WebhookManager)(nil)

func NewWebhookManager(baseURL string, timeout time.Duration, log zerolog.Logger) *WebhookManager {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookManager{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type accessRequest struct {
	ExternalID string `json:"external_id"`
	GroupID    string `json:"group_id,omitempty"`
	Text       string `json:"text,omitempty"`
}

func (m *WebhookManager) GrantAccess(ctx context.Context, externalID, groupID string) error {
	return m.post(ctx, "/access/grant", accessRequest{ExternalID: externalID, GroupID: groupID})
}

func (m *WebhookManager) RevokeAccess(ctx context.Context, externalID, groupID string) error {
	return m.post(ctx, "/access/revoke", accessRequest{ExternalID: externalID, GroupID: groupID})
}

func (m *WebhookManager) Notify(ctx context.Context, externalID, text string) error {
	return m.post(ctx, "/access/notify", accessRequest{ExternalID: externalID, Text: text})
}

func (m *WebhookManager) post(ctx context.Context, path string, payload accessRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal access payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build access request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("access bridge request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("access bridge %s: unexpected status %d", path, resp.StatusCode)
	}

	m.log.Debug().
		Str("path", path).
		Str("external_id", payload.ExternalID).
		Msg("access action delivered")

	return nil
}
