package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tokengate/gatekeeper/internal/api/metrics"
	"github.com/tokengate/gatekeeper/internal/core/domain"
	"github.com/tokengate/gatekeeper/internal/core/ports"
)

const defaultSweepWorkers = 4

// Sweeper periodically re-evaluates every verified member against the
// ownership threshold and revokes those who fell below it.
type Sweeper struct {
	members    ports.MemberRepository
	events     ports.EventRepository
	ownership  ports.OwnershipEvaluator
	dispatcher ports.AccessDispatcher
	groupID    string
	interval   time.Duration
	workers    int
	log        zerolog.Logger
}

// NewSweeper builds a sweeper. groupID is the access scope revocations are
// issued against. workers bounds concurrent ledger calls; <= 0 uses the default.
func NewSweeper(
	members ports.MemberRepository,
	events ports.EventRepository,
	ownership ports.OwnershipEvaluator,
	dispatcher ports.AccessDispatcher,
	groupID string,
	interval time.Duration,
	workers int,
	log zerolog.Logger,
) *Sweeper {
	if workers <= 0 {
		workers = defaultSweepWorkers
	}
	return &Sweeper{
		members:    members,
		events:     events,
		ownership:  ownership,
		dispatcher: dispatcher,
		groupID:    groupID,
		interval:   interval,
		workers:    workers,
		log:        log,
	}
}

// Start runs sweeps on the configured interval until ctx is cancelled.
// Periodicity is at-least-once: a slow sweep delays the next tick rather than
// overlapping it.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
	s.log.Info().Dur("interval", s.interval).Int("workers", s.workers).Msg("sweeper started")
}

// RunOnce performs a single sweep. Each member is evaluated in isolation: one
// failure is logged and never aborts the rest of the run. The sweep has no
// return value; its effects are persisted balance snapshots and revocations.
func (s *Sweeper) RunOnce(ctx context.Context) {
	started := time.Now()
	members, err := s.members.ListVerified(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep aborted: listing verified members failed")
		metrics.SweepRunsTotal.WithLabelValues("error").Inc()
		return
	}

	var revoked, failed, skipped int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	results := make([]sweepOutcome, len(members))

	for i, member := range members {
		if member.Whitelisted {
			results[i] = outcomeSkipped
			continue
		}
		i, member := i, member
		g.Go(func() error {
			results[i] = s.evaluateMember(gctx, member)
			// Errors are captured per member, never returned: returning one
			// would cancel the group and starve the remaining members.
			return nil
		})
	}
	_ = g.Wait()

	for _, outcome := range results {
		switch outcome {
		case outcomeRevoked:
			revoked++
		case outcomeFailed:
			failed++
		case outcomeSkipped:
			skipped++
		}
	}

	metrics.SweepRunsTotal.WithLabelValues("ok").Inc()
	metrics.SweepRevocationsTotal.Add(float64(revoked))
	metrics.SweepFailuresTotal.Add(float64(failed))
	metrics.SweepDuration.Observe(time.Since(started).Seconds())

	s.log.Info().
		Int("members", len(members)).
		Int("revoked", revoked).
		Int("failed", failed).
		Int("whitelisted_skipped", skipped).
		Dur("elapsed", time.Since(started)).
		Msg("sweep completed")
}

type sweepOutcome int

const (
	outcomeKept sweepOutcome = iota
	outcomeRevoked
	outcomeFailed
	outcomeSkipped
)

// evaluateMember re-checks one member. The balance snapshot is refreshed only
// on a successful evaluation; a transient failure leaves the stale snapshot
// untouched.
func (s *Sweeper) evaluateMember(ctx context.Context, member *domain.Member) sweepOutcome {
	result, err := s.ownership.Evaluate(ctx, member.WalletAddress)
	if err != nil {
		s.log.Warn().Err(err).
			Str("external_id", member.ExternalID).
			Str("wallet", member.WalletAddress).
			Msg("sweep evaluation failed, member left untouched")
		return outcomeFailed
	}

	now := time.Now().UTC()
	member.RefreshBalance(now, result.Balance)

	if result.Qualifies {
		if err := s.members.Update(ctx, member); err != nil {
			s.log.Warn().Err(err).Str("external_id", member.ExternalID).Msg("sweep balance refresh failed")
			return outcomeFailed
		}
		return outcomeKept
	}

	// The record may have changed between listing and evaluation; only a
	// verified member can be revoked.
	if !member.State().CanTransitionTo(domain.StateUnregistered) {
		s.log.Warn().
			Str("external_id", member.ExternalID).
			Str("state", string(member.State())).
			Msg("sweep skipped revocation: member no longer verified")
		return outcomeSkipped
	}

	member.Revoke()
	if err := s.members.Update(ctx, member); err != nil {
		s.log.Warn().Err(err).Str("external_id", member.ExternalID).Msg("sweep revocation persist failed")
		return outcomeFailed
	}

	s.appendRevokedEvent(ctx, member.ExternalID, result)

	s.dispatcher.Enqueue(ports.AccessAction{Type: ports.ActionRevoke, ExternalID: member.ExternalID, GroupID: s.groupID})
	s.dispatcher.Enqueue(ports.AccessAction{
		Type:       ports.ActionNotify,
		ExternalID: member.ExternalID,
		Text: fmt.Sprintf("Access revoked: you now own %.6f%% of supply, below the required %.6f%%.",
			result.PercentOwned*100, result.RequiredFraction*100),
	})

	s.log.Info().
		Str("external_id", member.ExternalID).
		Float64("percent_owned", result.PercentOwned).
		Msg("member revoked by sweep")
	return outcomeRevoked
}

func (s *Sweeper) appendRevokedEvent(ctx context.Context, externalID string, result *ports.OwnershipResult) {
	event := &domain.AuditEvent{
		ID:         uuid.NewString(),
		ExternalID: externalID,
		Type:       domain.EventRevoked,
		Payload: map[string]any{
			"percent_owned": result.PercentOwned,
			"balance":       result.Balance,
			"required":      result.RequiredFraction,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.events.Append(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("external_id", externalID).Msg("failed to append revoked event")
	}
}
