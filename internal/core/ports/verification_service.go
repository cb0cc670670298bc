package ports

import (
	"context"
	"time"
)

// IssueChallengeInput carries the parameters for issuing a new challenge.
type IssueChallengeInput struct {
	ExternalID  string
	DisplayName string // optional last-seen hint
	Wallet      string
	GroupID     string // optional access scope the member wants to enter
}

// ChallengeResult is returned after a challenge is issued.
type ChallengeResult struct {
	Amount    float64
	ExpiresAt time.Time
}

// ConfirmResult is returned on a successful confirmation.
type ConfirmResult struct {
	Signature    string
	Slot         uint64
	PercentOwned float64
	Balance      float64
	VerifiedAt   time.Time
}

// MatchResult is the outcome of a transfer scan.
type MatchResult struct {
	Signature     string
	Slot          uint64
	BlockTime     time.Time
	UserDelta     float64
	TreasuryDelta float64
}

// OwnershipResult is the outcome of a threshold evaluation.
type OwnershipResult struct {
	Qualifies    bool
	PercentOwned float64
	Balance      float64
	Supply       float64
	// RequiredFraction echoes the threshold the verdict was computed against.
	RequiredFraction float64
}

// VerificationService drives the per-member verification state machine.
type VerificationService interface {
	// IssueChallenge draws a fresh challenge amount for the member,
	// overwriting any pending challenge.
	IssueChallenge(ctx context.Context, input IssueChallengeInput) (*ChallengeResult, error)
	// Confirm scans the chain for the pending challenge transfer and, when the
	// holder also meets the ownership threshold, admits the member.
	Confirm(ctx context.Context, externalID string) (*ConfirmResult, error)
	// SetWhitelisted flips the whitelist flag. Enabling it fires any pending
	// admission immediately.
	SetWhitelisted(ctx context.Context, externalID string, whitelisted bool, changedBy string) error
	// RecordJoinRequest registers a join request from the chat layer,
	// creating the member record on first contact.
	RecordJoinRequest(ctx context.Context, externalID, displayName, groupID string) error
}

// OwnershipEvaluator computes a wallet's share of total supply.
type OwnershipEvaluator interface {
	Evaluate(ctx context.Context, wallet string) (*OwnershipResult, error)
}

// TransferMatcher scans recent chain history for a transfer of the expected amount.
type TransferMatcher interface {
	Match(ctx context.Context, wallet string, expectedAmount float64) (*MatchResult, error)
}
