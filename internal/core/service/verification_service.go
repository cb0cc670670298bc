package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tokengate/gatekeeper/internal/api/metrics"
	"github.com/tokengate/gatekeeper/internal/core/domain"
	"github.com/tokengate/gatekeeper/internal/core/ports"
)

// DefaultChallengeWindow is how long a holder has to complete the transfer.
const DefaultChallengeWindow = 30 * time.Minute

// ChallengeConfig carries the tunable parts of challenge issuance.
type ChallengeConfig struct {
	MinAmount float64
	MaxAmount float64
	Window    time.Duration
}

// VerificationService drives the per-member verification state machine:
// challenge issuance, transfer confirmation, whitelist overrides, and
// join-request intake.
type VerificationService struct {
	members    ports.MemberRepository
	events     ports.EventRepository
	matcher    ports.TransferMatcher
	ownership  ports.OwnershipEvaluator
	dispatcher ports.AccessDispatcher
	cfg        ChallengeConfig
	log        zerolog.Logger
}

func NewVerificationService(
	members ports.MemberRepository,
	events ports.EventRepository,
	matcher ports.TransferMatcher,
	ownership ports.OwnershipEvaluator,
	dispatcher ports.AccessDispatcher,
	cfg ChallengeConfig,
	log zerolog.Logger,
) *VerificationService {
	if cfg.Window <= 0 {
		cfg.Window = DefaultChallengeWindow
	}
	return &VerificationService{
		members:    members,
		events:     events,
		matcher:    matcher,
		ownership:  ownership,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
	}
}

// IssueChallenge draws a fresh random amount for the member and persists it.
// Re-issuing while a challenge is pending silently overwrites it: the last
// challenge wins. No remote calls are made.
func (s *VerificationService) IssueChallenge(ctx context.Context, input ports.IssueChallengeInput) (*ports.ChallengeResult, error) {
	member, err := s.members.GetOrCreate(ctx, input.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("issue challenge: %w", err)
	}

	if !member.State().CanTransitionTo(domain.StatePendingChallenge) {
		return nil, fmt.Errorf("issue challenge: %w (from %s to %s)",
			domain.ErrInvalidTransition, member.State(), domain.StatePendingChallenge)
	}

	now := time.Now().UTC()
	amount := drawChallengeAmount(s.cfg.MinAmount, s.cfg.MaxAmount)
	expiresAt := now.Add(s.cfg.Window)

	if input.DisplayName != "" {
		member.DisplayName = input.DisplayName
	}
	member.WalletAddress = input.Wallet
	if input.GroupID != "" {
		member.RequestedGroupID = input.GroupID
	}
	member.SetChallenge(amount, expiresAt)

	if err := s.members.Update(ctx, member); err != nil {
		return nil, fmt.Errorf("issue challenge: %w", err)
	}

	s.appendEvent(ctx, member.ExternalID, domain.EventRequested, map[string]any{
		"amount":     amount,
		"expires_at": expiresAt,
		"wallet":     input.Wallet,
		"group_id":   member.RequestedGroupID,
	})

	metrics.ChallengesIssuedTotal.Inc()
	s.log.Info().
		Str("external_id", input.ExternalID).
		Str("wallet", input.Wallet).
		Float64("amount", amount).
		Time("expires_at", expiresAt).
		Msg("challenge issued")

	return &ports.ChallengeResult{Amount: amount, ExpiresAt: expiresAt}, nil
}

// Confirm checks the chain for the pending challenge transfer and, when the
// holder also clears the ownership threshold, admits the member.
//
// Outcomes map onto the state machine:
//   - expired challenge: challenge fields cleared, no chain calls, ErrChallengeExpired
//   - no matching transfer: state unchanged, ErrNoTransferFound (holder retries)
//   - matched but below threshold: challenge preserved, BelowThresholdError
//     (a later top-up succeeds without re-issuing)
//   - matched and qualified: member verified, admission side effect fired
func (s *VerificationService) Confirm(ctx context.Context, externalID string) (*ports.ConfirmResult, error) {
	member, err := s.members.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("confirm: %w", err)
	}

	if !member.HasPendingChallenge() {
		return nil, domain.ErrNoPendingChallenge
	}

	now := time.Now().UTC()

	// 1. Expiry is checked before any remote call.
	if member.ChallengeExpired(now) {
		member.ClearChallenge()
		if err := s.members.Update(ctx, member); err != nil {
			return nil, fmt.Errorf("confirm: clear expired challenge: %w", err)
		}
		metrics.VerificationsTotal.WithLabelValues("expired").Inc()
		s.log.Info().Str("external_id", externalID).Msg("challenge expired, cleared")
		return nil, domain.ErrChallengeExpired
	}

	// 2. Scan recent history for the challenge transfer.
	match, err := s.matcher.Match(ctx, member.WalletAddress, *member.ChallengeAmount)
	if err != nil {
		return nil, err
	}

	// 3. Independent ownership re-check against the threshold.
	ownership, err := s.ownership.Evaluate(ctx, member.WalletAddress)
	if err != nil {
		return nil, err
	}
	if !ownership.Qualifies {
		// Control of the wallet is proven; the challenge stays pending so a
		// top-up and retry can succeed without a new transfer.
		metrics.VerificationsTotal.WithLabelValues("below_threshold").Inc()
		return nil, &domain.BelowThresholdError{
			PercentOwned: ownership.PercentOwned,
			Required:     ownership.RequiredFraction,
		}
	}

	// 4. Validate state machine transition, then admit.
	if !member.State().CanTransitionTo(domain.StateVerified) {
		return nil, fmt.Errorf("confirm: %w (from %s to %s)",
			domain.ErrInvalidTransition, member.State(), domain.StateVerified)
	}
	member.MarkVerified(now, ownership.Balance)
	grantGroup := member.RequestedGroupID
	member.RequestedGroupID = ""
	if err := s.members.Update(ctx, member); err != nil {
		return nil, fmt.Errorf("confirm: persist verification: %w", err)
	}

	s.appendEvent(ctx, externalID, domain.EventVerified, map[string]any{
		"signature":     match.Signature,
		"slot":          match.Slot,
		"percent_owned": ownership.PercentOwned,
		"balance":       ownership.Balance,
	})

	if grantGroup != "" {
		s.dispatcher.Enqueue(ports.AccessAction{Type: ports.ActionGrant, ExternalID: externalID, GroupID: grantGroup})
		s.appendEvent(ctx, externalID, domain.EventGroupCleared, map[string]any{"group_id": grantGroup})
	}
	s.dispatcher.Enqueue(ports.AccessAction{
		Type:       ports.ActionNotify,
		ExternalID: externalID,
		Text:       fmt.Sprintf("Verification complete. You own %.6f%% of supply.", ownership.PercentOwned*100),
	})

	metrics.VerificationsTotal.WithLabelValues("verified").Inc()
	s.log.Info().
		Str("external_id", externalID).
		Str("signature", match.Signature).
		Float64("percent_owned", ownership.PercentOwned).
		Msg("member verified")

	return &ports.ConfirmResult{
		Signature:    match.Signature,
		Slot:         match.Slot,
		PercentOwned: ownership.PercentOwned,
		Balance:      ownership.Balance,
		VerifiedAt:   now,
	}, nil
}

// SetWhitelisted flips the whitelist flag. Whitelisted members bypass all
// threshold enforcement; enabling the flag fires any pending admission
// immediately.
func (s *VerificationService) SetWhitelisted(ctx context.Context, externalID string, whitelisted bool, changedBy string) error {
	member, err := s.members.GetOrCreate(ctx, externalID)
	if err != nil {
		return fmt.Errorf("whitelist: %w", err)
	}

	member.Whitelisted = whitelisted
	pending := member.RequestedGroupID
	if whitelisted && pending != "" {
		member.RequestedGroupID = ""
	}
	if err := s.members.Update(ctx, member); err != nil {
		return fmt.Errorf("whitelist: %w", err)
	}

	s.appendEvent(ctx, externalID, domain.EventWhitelistChanged, map[string]any{
		"whitelisted": whitelisted,
		"changed_by":  changedBy,
	})

	if whitelisted && pending != "" {
		s.dispatcher.Enqueue(ports.AccessAction{Type: ports.ActionGrant, ExternalID: externalID, GroupID: pending})
		s.appendEvent(ctx, externalID, domain.EventGroupCleared, map[string]any{"group_id": pending})
	}

	s.log.Info().
		Str("external_id", externalID).
		Bool("whitelisted", whitelisted).
		Str("changed_by", changedBy).
		Msg("whitelist flag changed")
	return nil
}

// RecordJoinRequest registers a join request pushed by the chat bridge. The
// record is created on first contact. Already-admitted members are granted
// straight away.
func (s *VerificationService) RecordJoinRequest(ctx context.Context, externalID, displayName, groupID string) error {
	member, err := s.members.GetOrCreate(ctx, externalID)
	if err != nil {
		return fmt.Errorf("join request: %w", err)
	}

	if displayName != "" {
		member.DisplayName = displayName
	}

	if member.Verified || member.Whitelisted {
		if err := s.members.Update(ctx, member); err != nil {
			return fmt.Errorf("join request: %w", err)
		}
		s.dispatcher.Enqueue(ports.AccessAction{Type: ports.ActionGrant, ExternalID: externalID, GroupID: groupID})
		return nil
	}

	member.RequestedGroupID = groupID
	if err := s.members.Update(ctx, member); err != nil {
		return fmt.Errorf("join request: %w", err)
	}
	s.appendEvent(ctx, externalID, domain.EventGroupRequested, map[string]any{"group_id": groupID})
	return nil
}

// appendEvent writes to the audit trail. Failures are logged, never fatal:
// the trail is for operators, not for correctness.
func (s *VerificationService) appendEvent(ctx context.Context, externalID string, typ domain.EventType, payload map[string]any) {
	event := &domain.AuditEvent{
		ID:         uuid.NewString(),
		ExternalID: externalID,
		Type:       typ,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.events.Append(ctx, event); err != nil {
		s.log.Warn().Err(err).
			Str("external_id", externalID).
			Str("event_type", string(typ)).
			Msg("failed to append audit event")
	}
}

// drawChallengeAmount picks a uniform random amount in [min, max], rounded to
// 9 fractional digits. The precision is the point: the amount doubles as a
// matching nonce, not a display value.
func drawChallengeAmount(min, max float64) float64 {
	var b [8]byte
	var unit float64
	if _, err := rand.Read(b[:]); err != nil {
		// fallback: current nanoseconds
		unit = float64(time.Now().UnixNano()%1e9) / 1e9
	} else {
		unit = float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
	}
	return roundTo9(min + unit*(max-min))
}

// roundTo9 rounds to 9 fractional digits, the finest ui precision the ledger
// represents.
func roundTo9(v float64) float64 {
	return math.Round(v*1e9) / 1e9
}
