package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tokengate/gatekeeper/internal/core/domain"
	"github.com/tokengate/gatekeeper/internal/core/ports"
)

func testChallengeConfig() ChallengeConfig {
	return ChallengeConfig{MinAmount: 0.000001, MaxAmount: 0.00001, Window: 30 * time.Minute}
}

type verificationFixture struct {
	repo       *stubMemberRepo
	events     *stubEventRepo
	matcher    *stubMatcher
	evaluator  *stubEvaluator
	dispatcher *stubDispatcher
	svc        *VerificationService
}

func newVerificationFixture() *verificationFixture {
	f := &verificationFixture{
		repo:       newStubMemberRepo(),
		events:     newStubEventRepo(),
		matcher:    &stubMatcher{},
		evaluator:  newStubEvaluator(),
		dispatcher: &stubDispatcher{},
	}
	f.svc = NewVerificationService(f.repo, f.events, f.matcher, f.evaluator, f.dispatcher, testChallengeConfig(), discardLogger)
	return f
}

func pendingMember(wallet string, amount float64, expiresAt time.Time) *domain.Member {
	m := &domain.Member{ExternalID: "user-1", WalletAddress: wallet}
	m.SetChallenge(amount, expiresAt)
	return m
}

// ---------------------------------------------------------------------------
// IssueChallenge
// ---------------------------------------------------------------------------

func TestIssueChallenge_SetsFieldsWithinRange(t *testing.T) {
	f := newVerificationFixture()

	before := time.Now().UTC()
	result, err := f.svc.IssueChallenge(context.Background(), ports.IssueChallengeInput{
		ExternalID: "user-1",
		Wallet:     testWallet,
		GroupID:    "group-42",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Amount < 0.000001 || result.Amount > 0.00001 {
		t.Errorf("amount %v outside configured range", result.Amount)
	}
	// Rounded to 9 fractional digits: scaling by 1e9 must give an integer.
	scaled := result.Amount * 1e9
	if scaled != math.Round(scaled) {
		t.Errorf("amount %v not rounded to 9 fractional digits", result.Amount)
	}

	wantExpiry := before.Add(30 * time.Minute)
	if result.ExpiresAt.Before(wantExpiry) || result.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("expiry %v not ~30m after issuance", result.ExpiresAt)
	}

	stored := f.repo.get("user-1")
	if stored == nil || !stored.HasPendingChallenge() {
		t.Fatalf("challenge fields must be persisted together")
	}
	if stored.Verified {
		t.Errorf("issuing must reset verified")
	}
	if stored.WalletAddress != testWallet || stored.RequestedGroupID != "group-42" {
		t.Errorf("wallet/group not persisted: %+v", stored)
	}
	if got := f.events.typesFor("user-1"); len(got) != 1 || got[0] != domain.EventRequested {
		t.Errorf("expected one requested event, got %v", got)
	}
}

func TestIssueChallenge_ReissueOverwrites(t *testing.T) {
	f := newVerificationFixture()

	first, err := f.svc.IssueChallenge(context.Background(), ports.IssueChallengeInput{ExternalID: "user-1", Wallet: testWallet})
	if err != nil {
		t.Fatalf("first issue failed: %v", err)
	}
	second, err := f.svc.IssueChallenge(context.Background(), ports.IssueChallengeInput{ExternalID: "user-1", Wallet: testWallet})
	if err != nil {
		t.Fatalf("second issue failed: %v", err)
	}

	stored := f.repo.get("user-1")
	if *stored.ChallengeAmount != second.Amount {
		t.Errorf("last challenge must win: stored %v, want %v (first was %v)",
			*stored.ChallengeAmount, second.Amount, first.Amount)
	}
}

func TestDrawChallengeAmount_Distribution(t *testing.T) {
	min, max := 0.000001, 0.00001
	for i := 0; i < 1000; i++ {
		a := drawChallengeAmount(min, max)
		if a < min || a > max {
			t.Fatalf("draw %v outside [%v, %v]", a, min, max)
		}
		scaled := a * 1e9
		if scaled != math.Round(scaled) {
			t.Fatalf("draw %v not rounded to 9 fractional digits", a)
		}
	}
}

// ---------------------------------------------------------------------------
// Confirm
// ---------------------------------------------------------------------------

func TestConfirm_NoPendingChallenge(t *testing.T) {
	f := newVerificationFixture()
	f.repo.seed(&domain.Member{ExternalID: "user-1", WalletAddress: testWallet})

	_, err := f.svc.Confirm(context.Background(), "user-1")
	if !errors.Is(err, domain.ErrNoPendingChallenge) {
		t.Errorf("expected ErrNoPendingChallenge, got %v", err)
	}
}

func TestConfirm_UnknownMember(t *testing.T) {
	f := newVerificationFixture()

	_, err := f.svc.Confirm(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrMemberNotFound) {
		t.Errorf("expected ErrMemberNotFound, got %v", err)
	}
}

func TestConfirm_ExpiredClearsWithoutChainCalls(t *testing.T) {
	f := newVerificationFixture()
	// Issued 31 minutes ago with a 30-minute window.
	expired := time.Now().UTC().Add(-time.Minute)
	f.repo.seed(pendingMember(testWallet, 0.000004217, expired))

	_, err := f.svc.Confirm(context.Background(), "user-1")
	if !errors.Is(err, domain.ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}

	stored := f.repo.get("user-1")
	if stored.HasPendingChallenge() {
		t.Errorf("expired challenge fields must be cleared")
	}
	if f.matcher.calls != 0 || f.evaluator.calls != 0 {
		t.Errorf("no remote calls allowed on expiry: matcher=%d evaluator=%d", f.matcher.calls, f.evaluator.calls)
	}
}

func TestConfirm_NoTransferLeavesStateUnchanged(t *testing.T) {
	f := newVerificationFixture()
	expiresAt := time.Now().UTC().Add(20 * time.Minute)
	f.repo.seed(pendingMember(testWallet, 0.000004217, expiresAt))
	f.matcher.err = domain.ErrNoTransferFound

	_, err := f.svc.Confirm(context.Background(), "user-1")
	if !errors.Is(err, domain.ErrNoTransferFound) {
		t.Fatalf("expected ErrNoTransferFound, got %v", err)
	}

	stored := f.repo.get("user-1")
	if !stored.HasPendingChallenge() || *stored.ChallengeAmount != 0.000004217 {
		t.Errorf("challenge must remain pending for retry")
	}
}

func TestConfirm_BelowThresholdPreservesChallenge(t *testing.T) {
	f := newVerificationFixture()
	expiresAt := time.Now().UTC().Add(20 * time.Minute)
	f.repo.seed(pendingMember(testWallet, 0.000004217, expiresAt))
	f.matcher.result = &ports.MatchResult{Signature: "sigX", Slot: 5}
	f.evaluator.results[testWallet] = &ports.OwnershipResult{
		Qualifies:        false,
		PercentOwned:     0.0004,
		Balance:          4,
		Supply:           10000,
		RequiredFraction: 0.001,
	}

	_, err := f.svc.Confirm(context.Background(), "user-1")
	var btErr *domain.BelowThresholdError
	if !errors.As(err, &btErr) {
		t.Fatalf("expected BelowThresholdError, got %v", err)
	}
	if btErr.PercentOwned != 0.0004 || btErr.Required != 0.001 {
		t.Errorf("error must carry exact percentages: %+v", btErr)
	}

	stored := f.repo.get("user-1")
	if !stored.HasPendingChallenge() {
		t.Errorf("challenge must be preserved so a top-up retry succeeds without re-issuing")
	}
	if stored.Verified {
		t.Errorf("member must not be verified")
	}
}

func TestConfirm_QualifiesAdmitsMember(t *testing.T) {
	f := newVerificationFixture()
	expiresAt := time.Now().UTC().Add(20 * time.Minute)
	m := pendingMember(testWallet, 0.000004217, expiresAt)
	m.RequestedGroupID = "group-42"
	f.repo.seed(m)
	f.matcher.result = &ports.MatchResult{Signature: "sigX", Slot: 5}
	f.evaluator.results[testWallet] = &ports.OwnershipResult{
		Qualifies:        true,
		PercentOwned:     0.002,
		Balance:          20,
		Supply:           10000,
		RequiredFraction: 0.001,
	}

	result, err := f.svc.Confirm(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Signature != "sigX" || result.PercentOwned != 0.002 {
		t.Errorf("unexpected result: %+v", result)
	}

	stored := f.repo.get("user-1")
	if !stored.Verified || stored.VerifiedAt == nil {
		t.Errorf("member must be verified with timestamp")
	}
	if stored.HasPendingChallenge() {
		t.Errorf("challenge fields must be cleared on admission")
	}
	if stored.LastKnownBalance == nil || *stored.LastKnownBalance != 20 {
		t.Errorf("balance snapshot must be stored")
	}
	if stored.RequestedGroupID != "" {
		t.Errorf("pending group request must be cleared after admission")
	}

	grants := f.dispatcher.byType(ports.ActionGrant)
	if len(grants) != 1 || grants[0].GroupID != "group-42" {
		t.Errorf("expected one grant for group-42, got %+v", grants)
	}
	if n := len(f.dispatcher.byType(ports.ActionNotify)); n != 1 {
		t.Errorf("expected one notification, got %d", n)
	}

	types := f.events.typesFor("user-1")
	hasVerified := false
	for _, typ := range types {
		if typ == domain.EventVerified {
			hasVerified = true
		}
	}
	if !hasVerified {
		t.Errorf("verified event must be appended, got %v", types)
	}
}

func TestConfirm_TransientLedgerFailure(t *testing.T) {
	f := newVerificationFixture()
	expiresAt := time.Now().UTC().Add(20 * time.Minute)
	f.repo.seed(pendingMember(testWallet, 0.000004217, expiresAt))
	f.matcher.err = domain.ErrLedgerUnavailable

	_, err := f.svc.Confirm(context.Background(), "user-1")
	if !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}

	stored := f.repo.get("user-1")
	if !stored.HasPendingChallenge() {
		t.Errorf("transient failure must leave the challenge pending")
	}
}

// ---------------------------------------------------------------------------
// Whitelist and join requests
// ---------------------------------------------------------------------------

func TestSetWhitelisted_FiresPendingAdmission(t *testing.T) {
	f := newVerificationFixture()
	f.repo.seed(&domain.Member{ExternalID: "user-1", RequestedGroupID: "group-42"})

	if err := f.svc.SetWhitelisted(context.Background(), "user-1", true, "admin-9"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.repo.get("user-1")
	if !stored.Whitelisted {
		t.Errorf("whitelist flag must be set")
	}
	if stored.RequestedGroupID != "" {
		t.Errorf("pending group request must be cleared")
	}
	grants := f.dispatcher.byType(ports.ActionGrant)
	if len(grants) != 1 || grants[0].GroupID != "group-42" {
		t.Errorf("expected immediate grant, got %+v", grants)
	}
}

func TestSetWhitelisted_DisableDoesNotGrant(t *testing.T) {
	f := newVerificationFixture()
	f.repo.seed(&domain.Member{ExternalID: "user-1", Whitelisted: true, RequestedGroupID: "group-42"})

	if err := f.svc.SetWhitelisted(context.Background(), "user-1", false, "admin-9"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.dispatcher.byType(ports.ActionGrant)) != 0 {
		t.Errorf("disabling the whitelist must not grant access")
	}
	stored := f.repo.get("user-1")
	if stored.RequestedGroupID != "group-42" {
		t.Errorf("pending request must be kept when disabling")
	}
}

func TestRecordJoinRequest_FirstContactCreatesRecord(t *testing.T) {
	f := newVerificationFixture()

	if err := f.svc.RecordJoinRequest(context.Background(), "newcomer", "Ada", "group-42"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.repo.get("newcomer")
	if stored == nil {
		t.Fatalf("record must be created on first contact")
	}
	if stored.DisplayName != "Ada" || stored.RequestedGroupID != "group-42" {
		t.Errorf("unexpected record: %+v", stored)
	}
	if got := f.events.typesFor("newcomer"); len(got) != 1 || got[0] != domain.EventGroupRequested {
		t.Errorf("expected group-requested event, got %v", got)
	}
	if len(f.dispatcher.actions) != 0 {
		t.Errorf("unverified newcomer must not be granted")
	}
}

func TestRecordJoinRequest_VerifiedMemberGrantedImmediately(t *testing.T) {
	f := newVerificationFixture()
	now := time.Now().UTC()
	f.repo.seed(&domain.Member{ExternalID: "user-1", WalletAddress: testWallet, Verified: true, VerifiedAt: &now})

	if err := f.svc.RecordJoinRequest(context.Background(), "user-1", "", "group-42"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	grants := f.dispatcher.byType(ports.ActionGrant)
	if len(grants) != 1 || grants[0].GroupID != "group-42" {
		t.Errorf("verified member must be granted immediately, got %+v", grants)
	}
}
