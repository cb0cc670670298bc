package api

import (
	"context"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tokengate/gatekeeper/internal/api/handler"
	"github.com/tokengate/gatekeeper/internal/api/middleware"
	"github.com/tokengate/gatekeeper/internal/core/domain"
	"github.com/tokengate/gatekeeper/internal/core/ports"
	"github.com/tokengate/gatekeeper/internal/core/service"
)

// Dependencies carries everything the HTTP layer needs, constructed once at
// bootstrap.
type Dependencies struct {
	// BaseContext bounds background work started by handlers; it is the
	// process's signal context.
	BaseContext context.Context

	DB    *mongo.Database
	Redis *redis.Client

	Members      ports.MemberRepository
	Events       ports.EventRepository
	Verification ports.VerificationService
	Auth         ports.AuthService
	Sweeper      *service.Sweeper

	JWTSecret string
	Log       zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("gatekeeper"))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(deps.Auth)
	verificationHandler := handler.NewVerificationHandler(deps.Verification)
	memberHandler := handler.NewMemberHandler(deps.Members, deps.Events, deps.Verification)
	webhookHandler := handler.NewWebhookHandler(deps.Verification)
	sweepHandler := handler.NewSweepHandler(deps.BaseContext, deps.Sweeper)

	authMiddleware := middleware.Auth(deps.JWTSecret)
	staffOnly := middleware.RBAC(domain.RoleAdmin, domain.RoleOperator)
	adminOnly := middleware.RBAC(domain.RoleAdmin)

	// --- Auth routes ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)

	// --- Verification routes (holder-facing, no auth) ---
	v1 := e.Group("/v1")
	v1.POST("/verification/challenge", verificationHandler.Challenge)
	v1.POST("/verification/confirm", verificationHandler.Confirm)

	// --- Bridge webhook ---
	v1.POST("/webhook/join-request", webhookHandler.JoinRequest)

	// --- Admin API ---
	members := v1.Group("/members", authMiddleware, staffOnly)
	members.GET("", memberHandler.List)
	members.GET("/:external_id", memberHandler.Get)
	members.GET("/:external_id/events", memberHandler.Events)
	members.POST("/:external_id/whitelist", memberHandler.SetWhitelist, adminOnly)

	v1.POST("/sweep/run", sweepHandler.Run, authMiddleware, adminOnly)

	// --- Observability ---
	e.GET("/metrics", echoprometheus.NewHandler())

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.DB, deps.Redis)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	return e
}
