package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tokengate/gatekeeper/internal/core/domain"
	"github.com/tokengate/gatekeeper/internal/core/ports"
)

type MemberHandler struct {
	members      ports.MemberRepository
	events       ports.EventRepository
	verification ports.VerificationService
}

func NewMemberHandler(members ports.MemberRepository, events ports.EventRepository, verification ports.VerificationService) *MemberHandler {
	return &MemberHandler{members: members, events: events, verification: verification}
}

// memberResponse wraps the record with its derived lifecycle state.
type memberResponse struct {
	*domain.Member
	State domain.MemberState `json:"state"`
}

func toMemberResponse(m *domain.Member) memberResponse {
	return memberResponse{Member: m, State: m.State()}
}

// Get returns a single member's record and derived state.
func (h *MemberHandler) Get(c echo.Context) error {
	m, err := h.members.FindByExternalID(c.Request().Context(), c.Param("external_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toMemberResponse(m))
}

// List returns members, optionally filtered by verified/whitelisted flags.
func (h *MemberHandler) List(c echo.Context) error {
	var filter ports.MemberFilter

	if v := c.QueryParam("verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "verified must be a boolean")
		}
		filter.Verified = &b
	}
	if v := c.QueryParam("whitelisted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "whitelisted must be a boolean")
		}
		filter.Whitelisted = &b
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		filter.Limit = n
	}

	members, err := h.members.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}

	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberResponse(m))
	}
	return c.JSON(http.StatusOK, map[string]any{"members": out, "count": len(out)})
}

type whitelistRequest struct {
	Whitelisted bool `json:"whitelisted"`
}

// SetWhitelist flips a member's whitelist flag. Admin only; the acting
// operator's username is recorded in the audit trail.
func (h *MemberHandler) SetWhitelist(c echo.Context) error {
	username, _, err := ctxClaims(c)
	if err != nil {
		return err
	}

	var req whitelistRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	externalID := c.Param("external_id")
	if err := h.verification.SetWhitelisted(c.Request().Context(), externalID, req.Whitelisted, username); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"external_id": externalID,
		"whitelisted": req.Whitelisted,
	})
}

// Events returns a member's audit trail, newest-first.
func (h *MemberHandler) Events(c echo.Context) error {
	externalID := c.Param("external_id")

	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}

	// 404 for unknown members rather than an empty trail.
	if _, err := h.members.FindByExternalID(c.Request().Context(), externalID); err != nil {
		return err
	}

	events, err := h.events.ListByExternalID(c.Request().Context(), externalID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"events": events, "count": len(events)})
}
