package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tokengate/gatekeeper/internal/core/ports"
)

type VerificationHandler struct {
	verification ports.VerificationService
}

func NewVerificationHandler(verification ports.VerificationService) *VerificationHandler {
	return &VerificationHandler{verification: verification}
}

type challengeRequest struct {
	ExternalID  string `json:"external_id" validate:"required"`
	DisplayName string `json:"display_name"`
	Wallet      string `json:"wallet" validate:"required"`
	GroupID     string `json:"group_id"`
}

type challengeResponse struct {
	Amount    float64   `json:"amount"`
	ExpiresAt time.Time `json:"expires_at"`
}

type confirmRequest struct {
	ExternalID string `json:"external_id" validate:"required"`
}

type confirmResponse struct {
	Signature    string    `json:"signature"`
	Slot         uint64    `json:"slot"`
	PercentOwned float64   `json:"percent_owned"`
	Balance      float64   `json:"balance"`
	VerifiedAt   time.Time `json:"verified_at"`
}

// Challenge issues a fresh micro-transfer challenge for the member,
// overwriting any pending one.
func (h *VerificationHandler) Challenge(c echo.Context) error {
	var req challengeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.verification.IssueChallenge(c.Request().Context(), ports.IssueChallengeInput{
		ExternalID:  req.ExternalID,
		DisplayName: req.DisplayName,
		Wallet:      req.Wallet,
		GroupID:     req.GroupID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, challengeResponse{
		Amount:    result.Amount,
		ExpiresAt: result.ExpiresAt,
	})
}

// Confirm scans the chain for the pending challenge transfer and admits the
// member when the ownership threshold is also met.
func (h *VerificationHandler) Confirm(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.verification.Confirm(c.Request().Context(), req.ExternalID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, confirmResponse{
		Signature:    result.Signature,
		Slot:         result.Slot,
		PercentOwned: result.PercentOwned,
		Balance:      result.Balance,
		VerifiedAt:   result.VerifiedAt,
	})
}
