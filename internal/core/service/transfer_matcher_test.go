package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tokengate/gatekeeper/internal/core/domain"
	"github.com/tokengate/gatekeeper/internal/core/ports"
)

const (
	testTreasury = "TreasuryWallet1111111111111111111111111111"
	testMint     = "Mint11111111111111111111111111111111111111"
	testWallet   = "HolderWallet111111111111111111111111111111"
)

func newTestMatcher(ledger *stubLedger) *TransferMatcher {
	return NewTransferMatcher(ledger, testTreasury, testMint, 25, discardLogger)
}

func deltas(sig string, user, treasury float64) *ports.TransferDeltas {
	return &ports.TransferDeltas{Signature: sig, Slot: 100, UserDelta: user, TreasuryDelta: treasury}
}

// ---------------------------------------------------------------------------
// Tolerance predicate
// ---------------------------------------------------------------------------

func TestMatcher_ToleranceBoundary(t *testing.T) {
	expected := 0.000004217

	cases := []struct {
		name      string
		user      float64
		treasury  float64
		wantMatch bool
	}{
		{"exact", expected, expected, true},
		{"within tolerance both sides", expected - 1e-7, expected + 1e-7, true},
		{"user outside tolerance", expected + 2e-6, expected, false},
		{"treasury outside tolerance", expected, expected - 2e-6, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := matchesAmount(deltas("sig", tc.user, tc.treasury), expected)
			if got != tc.wantMatch {
				t.Errorf("matchesAmount(user=%v, treasury=%v, expected=%v) = %v, want %v",
					tc.user, tc.treasury, expected, got, tc.wantMatch)
			}
		})
	}
}

func TestMatcher_ToleranceBoundaryExact(t *testing.T) {
	// Use an expected amount of zero so the computed difference is exactly
	// the delta itself, with no floating-point error from subtraction.
	// |delta - expected| == 1e-6 exactly must still match (inclusive).
	if !matchesAmount(deltas("sig", 1e-6, 1e-6), 0) {
		t.Errorf("deltas exactly 1e-6 off must match (inclusive boundary)")
	}
	if matchesAmount(deltas("sig", 1.01e-6, 1.01e-6), 0) {
		t.Errorf("deltas beyond 1e-6 must not match")
	}
}

func TestMatcher_CrossCheckSameTransaction(t *testing.T) {
	// Each side is within tolerance of the expected amount but the two deltas
	// disagree with each other by more than the tolerance: not a single
	// coherent transfer, must not match.
	expected := 0.5
	if matchesAmount(deltas("sig", expected-1e-6, expected+1e-6), expected) {
		t.Errorf("deltas 2e-6 apart must fail the same-transaction cross-check")
	}
}

// ---------------------------------------------------------------------------
// Scan behaviour
// ---------------------------------------------------------------------------

func TestMatcher_FirstNewestMatchWins(t *testing.T) {
	ledger := newStubLedger()
	// Newest-first: sigA is the most recent. Both sigB and sigD match; sigB
	// must win because it is newer.
	ledger.signatures = []string{"sigA", "sigB", "sigC", "sigD"}
	ledger.deltas["sigA"] = deltas("sigA", 0.9, 0.9)
	ledger.deltas["sigB"] = deltas("sigB", 0.000004217, 0.000004217)
	ledger.deltas["sigC"] = deltas("sigC", 0.3, 0.3)
	ledger.deltas["sigD"] = deltas("sigD", 0.000004217, 0.000004217)

	m := newTestMatcher(ledger)
	got, err := m.Match(context.Background(), testWallet, 0.000004217)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Signature != "sigB" {
		t.Errorf("expected newest matching signature sigB, got %s", got.Signature)
	}
}

func TestMatcher_SkipsUnreadableTransactions(t *testing.T) {
	ledger := newStubLedger()
	ledger.signatures = []string{"sigUnreadable", "sigMatch"}
	ledger.deltaErrs["sigUnreadable"] = fmt.Errorf("missing meta: %w", domain.ErrTransferUnreadable)
	ledger.deltas["sigMatch"] = deltas("sigMatch", 2.5, 2.5)

	m := newTestMatcher(ledger)
	got, err := m.Match(context.Background(), testWallet, 2.5)
	if err != nil {
		t.Fatalf("unreadable transaction must be skipped, got error: %v", err)
	}
	if got.Signature != "sigMatch" {
		t.Errorf("expected sigMatch, got %s", got.Signature)
	}
}

func TestMatcher_NoMatchAfterExhaustingScan(t *testing.T) {
	ledger := newStubLedger()
	ledger.signatures = []string{"sig1", "sig2"}
	ledger.deltas["sig1"] = deltas("sig1", 0.1, 0.1)
	ledger.deltas["sig2"] = deltas("sig2", 0.2, 0.2)

	m := newTestMatcher(ledger)
	_, err := m.Match(context.Background(), testWallet, 0.5)
	if !errors.Is(err, domain.ErrNoTransferFound) {
		t.Errorf("expected ErrNoTransferFound, got %v", err)
	}
}

func TestMatcher_RemoteFailureIsTransient(t *testing.T) {
	ledger := newStubLedger()
	ledger.sigErr = errors.New("rpc timeout")

	m := newTestMatcher(ledger)
	_, err := m.Match(context.Background(), testWallet, 0.5)
	if !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Errorf("expected ErrLedgerUnavailable on remote failure, got %v", err)
	}
	if errors.Is(err, domain.ErrNoTransferFound) {
		t.Errorf("remote failure must never be reported as no-match")
	}
}

func TestMatcher_DetailFailureAbortsScan(t *testing.T) {
	ledger := newStubLedger()
	ledger.signatures = []string{"sigBroken", "sigMatch"}
	ledger.deltaErrs["sigBroken"] = errors.New("connection reset")
	ledger.deltas["sigMatch"] = deltas("sigMatch", 1.0, 1.0)

	m := newTestMatcher(ledger)
	_, err := m.Match(context.Background(), testWallet, 1.0)
	if !errors.Is(err, domain.ErrLedgerUnavailable) {
		t.Errorf("non-unreadable detail failure must abort as transient, got %v", err)
	}
}

func TestMatcher_ScanLimitRespected(t *testing.T) {
	ledger := newStubLedger()
	for i := 0; i < 30; i++ {
		sig := fmt.Sprintf("sig%02d", i)
		ledger.signatures = append(ledger.signatures, sig)
		ledger.deltas[sig] = deltas(sig, 0.1, 0.1)
	}
	// The only matching transfer sits beyond the scan window.
	ledger.deltas["sig28"] = deltas("sig28", 7.0, 7.0)

	m := NewTransferMatcher(ledger, testTreasury, testMint, 25, discardLogger)
	_, err := m.Match(context.Background(), testWallet, 7.0)
	if !errors.Is(err, domain.ErrNoTransferFound) {
		t.Errorf("match beyond scan limit must not be found, got %v", err)
	}
}

// Challenge amount 0.000004217; observed deltas a hair off on each side.
func TestMatcher_ExampleScenario(t *testing.T) {
	ledger := newStubLedger()
	ledger.signatures = []string{"sigX"}
	ledger.deltas["sigX"] = deltas("sigX", 0.0000042169999, 0.0000042170001)

	m := newTestMatcher(ledger)
	got, err := m.Match(context.Background(), testWallet, 0.000004217)
	if err != nil {
		t.Fatalf("expected match within tolerance, got %v", err)
	}
	if got.Signature != "sigX" {
		t.Errorf("unexpected signature %s", got.Signature)
	}
}
