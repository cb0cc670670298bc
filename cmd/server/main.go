package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tokengate/gatekeeper/internal/api"
	"github.com/tokengate/gatekeeper/internal/core/ports"
	"github.com/tokengate/gatekeeper/internal/core/service"
	"github.com/tokengate/gatekeeper/internal/infrastructure/access"
	mongodb "github.com/tokengate/gatekeeper/internal/infrastructure/db/mongo"
	redisdb "github.com/tokengate/gatekeeper/internal/infrastructure/db/redis"
	"github.com/tokengate/gatekeeper/internal/infrastructure/ledger"
	"github.com/tokengate/gatekeeper/internal/infrastructure/queue"
	"github.com/tokengate/gatekeeper/internal/pkg/config"
	"github.com/tokengate/gatekeeper/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Backing stores ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connect failed")
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Warn().Err(err).Msg("mongo disconnect failed")
		}
	}()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect failed")
	}
	defer func() { _ = rdb.Close() }()

	// --- Repositories ---
	memberRepo := mongodb.NewMemberRepository(db)
	eventRepo := mongodb.NewEventRepository(db)
	operatorRepo := mongodb.NewOperatorRepository(db)

	if err := memberRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("member indexes failed")
	}
	if err := eventRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("event indexes failed")
	}
	if err := operatorRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("operator indexes failed")
	}

	// --- Chain and bridge adapters ---
	ledgerClient := ledger.NewClient(cfg.Chain.RPCURL, 0, log)
	supplyCache := redisdb.NewSupplyCache(rdb, cfg.Chain.SupplyCacheTTL)

	var accessManager ports.AccessManager
	if cfg.Bridge.URL != "" {
		accessManager = access.NewWebhookManager(cfg.Bridge.URL, 0, log)
	} else {
		log.Warn().Msg("BRIDGE_URL not set, access actions will only be logged")
		accessManager = access.NewNoopManager(log)
	}

	dispatcher := queue.NewDispatcher(0, accessManager, log)
	dispatcher.Start(ctx)

	// --- Core services ---
	matcher := service.NewTransferMatcher(ledgerClient, cfg.Chain.TreasuryWallet, cfg.Chain.TokenMint, cfg.Verify.SignatureScanLimit, log)
	ownership := service.NewOwnershipEvaluator(ledgerClient, supplyCache, cfg.Chain.TokenMint, cfg.Verify.RequiredFraction, log)
	verification := service.NewVerificationService(memberRepo, eventRepo, matcher, ownership, dispatcher, service.ChallengeConfig{
		MinAmount: cfg.Verify.ChallengeMinAmount,
		MaxAmount: cfg.Verify.ChallengeMaxAmount,
		Window:    cfg.Verify.ChallengeWindow,
	}, log)
	authService := service.NewAuthService(operatorRepo, cfg.JWTSecret, 24*time.Hour)

	sweeper := service.NewSweeper(memberRepo, eventRepo, ownership, dispatcher, cfg.Sweep.GroupID, cfg.Sweep.Interval, cfg.Sweep.Workers, log)
	sweeper.Start(ctx)

	// --- HTTP ---
	e := api.NewRouter(api.Dependencies{
		BaseContext:  ctx,
		DB:           db,
		Redis:        rdb,
		Members:      memberRepo,
		Events:       eventRepo,
		Verification: verification,
		Auth:         authService,
		Sweeper:      sweeper,
		JWTSecret:    cfg.JWTSecret,
		Log:          log,
	})

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server start failed")
		}
	}()
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("gatekeeper listening")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
