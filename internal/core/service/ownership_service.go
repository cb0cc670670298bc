package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tokengate/gatekeeper/internal/api/metrics"
	"github.com/tokengate/gatekeeper/internal/core/domain"
	"github.com/tokengate/gatekeeper/internal/core/ports"
)

// SupplyCache abstracts the short-lived total-supply cache (Redis). A sweep
// over many members re-reads supply once per cache window instead of once per
// member.
type SupplyCache interface {
	Get(ctx context.Context, mint string) (float64, bool, error)
	Set(ctx context.Context, mint string, supply float64) error
}

// OwnershipEvaluator computes a wallet's share of total supply and compares it
// to the required fraction.
type OwnershipEvaluator struct {
	ledger           ports.LedgerClient
	cache            SupplyCache
	mint             string
	requiredFraction float64
	log              zerolog.Logger
}

// NewOwnershipEvaluator builds an evaluator. cache may be nil, in which case
// supply is fetched from the ledger on every evaluation.
func NewOwnershipEvaluator(ledger ports.LedgerClient, cache SupplyCache, mint string, requiredFraction float64, log zerolog.Logger) *OwnershipEvaluator {
	return &OwnershipEvaluator{
		ledger:           ledger,
		cache:            cache,
		mint:             mint,
		requiredFraction: requiredFraction,
		log:              log,
	}
}

// Evaluate fetches total supply and the wallet balance concurrently and
// reports whether the wallet owns at least the required fraction. The
// threshold boundary is inclusive. A zero supply is a configuration error,
// never a per-wallet verdict.
func (e *OwnershipEvaluator) Evaluate(ctx context.Context, wallet string) (*ports.OwnershipResult, error) {
	var supply, balance float64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		supply, err = e.totalSupply(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		balance, err = e.ledger.GetBalance(gctx, wallet, e.mint)
		if err != nil {
			return fmt.Errorf("get balance: %w: %w", domain.ErrLedgerUnavailable, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if supply == 0 {
		return nil, fmt.Errorf("mint %s: %w", e.mint, domain.ErrZeroSupply)
	}

	percent := balance / supply
	result := &ports.OwnershipResult{
		Qualifies:        percent >= e.requiredFraction,
		PercentOwned:     percent,
		Balance:          balance,
		Supply:           supply,
		RequiredFraction: e.requiredFraction,
	}

	e.log.Debug().
		Str("wallet", wallet).
		Float64("balance", balance).
		Float64("supply", supply).
		Float64("percent_owned", percent).
		Bool("qualifies", result.Qualifies).
		Msg("ownership evaluated")

	return result, nil
}

// totalSupply consults the cache first, falling back to the ledger. Cache
// failures are non-fatal: supply is simply re-fetched.
func (e *OwnershipEvaluator) totalSupply(ctx context.Context) (float64, error) {
	if e.cache != nil {
		supply, ok, err := e.cache.Get(ctx, e.mint)
		if err != nil {
			e.log.Warn().Err(err).Msg("supply cache read failed, fetching from ledger")
		} else if ok {
			metrics.SupplyCacheTotal.WithLabelValues("hit").Inc()
			return supply, nil
		} else {
			metrics.SupplyCacheTotal.WithLabelValues("miss").Inc()
		}
	}

	supply, err := e.ledger.GetSupply(ctx, e.mint)
	if err != nil {
		return 0, fmt.Errorf("get supply: %w: %w", domain.ErrLedgerUnavailable, err)
	}

	if e.cache != nil && supply > 0 {
		if err := e.cache.Set(ctx, e.mint, supply); err != nil {
			e.log.Warn().Err(err).Msg("supply cache write failed")
		}
	}
	return supply, nil
}
