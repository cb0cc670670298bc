package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tokengate/gatekeeper/internal/core/service"
)

type SweepHandler struct {
	// base scopes manually triggered sweeps to the process lifetime, so an
	// in-flight sweep stops at shutdown instead of outliving it.
	base    context.Context
	sweeper *service.Sweeper
}

func NewSweepHandler(base context.Context, sweeper *service.Sweeper) *SweepHandler {
	if base == nil {
		base = context.Background()
	}
	return &SweepHandler{base: base, sweeper: sweeper}
}

// Run triggers a revocation sweep outside the periodic schedule. The sweep
// runs in the background; its outcome lands in logs and metrics.
func (h *SweepHandler) Run(c echo.Context) error {
	go h.sweeper.RunOnce(h.base)
	return c.JSON(http.StatusAccepted, map[string]string{"status": "sweep started"})
}
