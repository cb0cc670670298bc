package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/tokengate/gatekeeper/internal/api/metrics"
	"github.com/tokengate/gatekeeper/internal/core/domain"
	"github.com/tokengate/gatekeeper/internal/core/ports"
)

// matchTolerance is the absolute tolerance applied independently to the
// holder-side and treasury-side deltas when comparing against the expected
// challenge amount.
const matchTolerance = 1e-6

const defaultScanLimit = 25

// TransferMatcher scans recent chain history for a transfer whose deltas match
// a pending challenge amount.
type TransferMatcher struct {
	ledger    ports.LedgerClient
	treasury  string
	mint      string
	scanLimit int
	log       zerolog.Logger
}

func NewTransferMatcher(ledger ports.LedgerClient, treasury, mint string, scanLimit int, log zerolog.Logger) *TransferMatcher {
	if scanLimit <= 0 {
		scanLimit = defaultScanLimit
	}
	return &TransferMatcher{
		ledger:    ledger,
		treasury:  treasury,
		mint:      mint,
		scanLimit: scanLimit,
		log:       log,
	}
}

// Match walks the wallet's most recent signatures newest-first and returns the
// first transaction where the holder lost and the treasury gained the expected
// amount. Unreadable transactions are skipped with a diagnostic log entry;
// they never surface to the holder. Any remote failure aborts the scan as
// transient.
func (m *TransferMatcher) Match(ctx context.Context, wallet string, expectedAmount float64) (*ports.MatchResult, error) {
	signatures, err := m.ledger.ListRecentSignatures(ctx, wallet, m.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w: %w", domain.ErrLedgerUnavailable, err)
	}

	for _, sig := range signatures {
		deltas, err := m.ledger.GetTransferDeltas(ctx, sig, wallet, m.treasury, m.mint)
		if err != nil {
			if errors.Is(err, domain.ErrTransferUnreadable) {
				// Diagnostic only: many signatures are unrelated transactions.
				m.log.Debug().Str("signature", sig).Str("wallet", wallet).Err(err).
					Msg("skipping unreadable transaction")
				continue
			}
			return nil, fmt.Errorf("transfer deltas for %s: %w: %w", sig, domain.ErrLedgerUnavailable, err)
		}

		if matchesAmount(deltas, expectedAmount) {
			m.log.Info().
				Str("signature", deltas.Signature).
				Uint64("slot", deltas.Slot).
				Float64("expected", expectedAmount).
				Float64("user_delta", deltas.UserDelta).
				Float64("treasury_delta", deltas.TreasuryDelta).
				Msg("challenge transfer matched")
			metrics.TransferMatchesTotal.WithLabelValues("match").Inc()
			return &ports.MatchResult{
				Signature:     deltas.Signature,
				Slot:          deltas.Slot,
				BlockTime:     deltas.BlockTime,
				UserDelta:     deltas.UserDelta,
				TreasuryDelta: deltas.TreasuryDelta,
			}, nil
		}

		m.log.Debug().
			Str("signature", sig).
			Float64("user_diff", deltas.UserDelta-expectedAmount).
			Float64("treasury_diff", deltas.TreasuryDelta-expectedAmount).
			Msg("transaction deltas do not match challenge")
	}

	metrics.TransferMatchesTotal.WithLabelValues("no_match").Inc()
	return nil, domain.ErrNoTransferFound
}

// matchesAmount applies the tolerance predicate to both sides of the transfer
// and cross-checks that the two deltas belong to the same movement of funds.
func matchesAmount(d *ports.TransferDeltas, expected float64) bool {
	return math.Abs(d.UserDelta-expected) <= matchTolerance &&
		math.Abs(d.TreasuryDelta-expected) <= matchTolerance &&
		math.Abs(d.UserDelta-d.TreasuryDelta) <= matchTolerance
}
