package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tokengate/gatekeeper/internal/core/ports"
)

// WebhookHandler receives inbound callbacks from the chat bridge.
type WebhookHandler struct {
	verification ports.VerificationService
}

func NewWebhookHandler(verification ports.VerificationService) *WebhookHandler {
	return &WebhookHandler{verification: verification}
}

type joinRequestPayload struct {
	ExternalID  string `json:"external_id" validate:"required"`
	DisplayName string `json:"display_name"`
	GroupID     string `json:"group_id" validate:"required"`
}

// JoinRequest registers a member's request to enter a gated group. Creates
// the member record on first contact; already-admitted members are granted
// access immediately.
func (h *WebhookHandler) JoinRequest(c echo.Context) error {
	var req joinRequestPayload
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.verification.RecordJoinRequest(c.Request().Context(), req.ExternalID, req.DisplayName, req.GroupID); err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}
