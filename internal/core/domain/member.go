package domain

import (
	"errors"
	"fmt"
	"time"
)

// MemberState represents the verification lifecycle state of a member.
type MemberState string

const (
	StateUnregistered     MemberState = "unregistered"
	StatePendingChallenge MemberState = "pending_challenge"
	StateVerified         MemberState = "verified"
)

// validTransitions defines the allowed state machine transitions.
// Revocation returns a member to unregistered; the audit trail preserves history.
var validTransitions = map[MemberState][]MemberState{
	StateUnregistered:     {StatePendingChallenge},
	StatePendingChallenge: {StatePendingChallenge, StateVerified, StateUnregistered},
	StateVerified:         {StatePendingChallenge, StateVerified, StateUnregistered},
}

var ErrInvalidTransition = errors.New("invalid state transition")
var ErrMemberNotFound = errors.New("member not found")
var ErrNoPendingChallenge = errors.New("no pending verification challenge")
var ErrChallengeExpired = errors.New("verification challenge expired")
var ErrNoTransferFound = errors.New("no matching transfer found")
var ErrZeroSupply = errors.New("token supply is zero")
var ErrLedgerUnavailable = errors.New("ledger temporarily unavailable")
var ErrTransferUnreadable = errors.New("transaction balance data unreadable")
var ErrForbidden = errors.New("access forbidden")

// BelowThresholdError is returned when a holder proved control of a wallet but
// does not own the required fraction of supply. It carries the exact numbers so
// the holder can be told how far short they are.
type BelowThresholdError struct {
	PercentOwned float64
	Required     float64
}

func (e *BelowThresholdError) Error() string {
	return fmt.Sprintf("holdings below threshold: own %.6f%%, need %.6f%%",
		e.PercentOwned*100, e.Required*100)
}

// ErrBelowThreshold allows errors.Is checks against any BelowThresholdError.
var ErrBelowThreshold = &BelowThresholdError{}

func (e *BelowThresholdError) Is(target error) bool {
	_, ok := target.(*BelowThresholdError)
	return ok
}

// CanTransitionTo reports whether a transition from the current state to next is valid.
func (s MemberState) CanTransitionTo(next MemberState) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Member is the core aggregate: one record per community member, keyed by the
// stable identifier of the external chat platform. Records are never deleted;
// revocation only flips Verified back to false.
type Member struct {
	ExternalID         string     `json:"external_id" bson:"external_id"`
	DisplayName        string     `json:"display_name,omitempty" bson:"display_name,omitempty"`
	WalletAddress      string     `json:"wallet_address,omitempty" bson:"wallet_address,omitempty"`
	ChallengeAmount    *float64   `json:"challenge_amount,omitempty" bson:"challenge_amount,omitempty"`
	ChallengeExpiresAt *time.Time `json:"challenge_expires_at,omitempty" bson:"challenge_expires_at,omitempty"`
	Verified           bool       `json:"verified" bson:"verified"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty" bson:"verified_at,omitempty"`
	LastKnownBalance   *float64   `json:"last_known_balance,omitempty" bson:"last_known_balance,omitempty"`
	LastCheckedAt      *time.Time `json:"last_checked_at,omitempty" bson:"last_checked_at,omitempty"`
	Whitelisted        bool       `json:"whitelisted" bson:"whitelisted"`
	RequestedGroupID   string     `json:"requested_group_id,omitempty" bson:"requested_group_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" bson:"updated_at"`
}

// State derives the lifecycle state from the record fields.
func (m *Member) State() MemberState {
	switch {
	case m.Verified:
		return StateVerified
	case m.ChallengeAmount != nil:
		return StatePendingChallenge
	default:
		return StateUnregistered
	}
}

// HasPendingChallenge reports whether a challenge is set, regardless of expiry.
func (m *Member) HasPendingChallenge() bool {
	return m.ChallengeAmount != nil && m.ChallengeExpiresAt != nil
}

// ChallengeExpired reports whether the pending challenge lapsed before now.
func (m *Member) ChallengeExpired(now time.Time) bool {
	return m.ChallengeExpiresAt != nil && now.After(*m.ChallengeExpiresAt)
}

// SetChallenge installs a new challenge, overwriting any pending one.
// Amount and expiry are always set together.
func (m *Member) SetChallenge(amount float64, expiresAt time.Time) {
	m.ChallengeAmount = &amount
	m.ChallengeExpiresAt = &expiresAt
	m.Verified = false
	m.VerifiedAt = nil
}

// ClearChallenge removes the pending challenge. Amount and expiry are always
// cleared together.
func (m *Member) ClearChallenge() {
	m.ChallengeAmount = nil
	m.ChallengeExpiresAt = nil
}

// MarkVerified records a successful verification at the given time with the
// balance observed during the ownership check.
func (m *Member) MarkVerified(at time.Time, balance float64) {
	m.ClearChallenge()
	m.Verified = true
	m.VerifiedAt = &at
	m.LastKnownBalance = &balance
	m.LastCheckedAt = &at
}

// Revoke flips the member back to unregistered. Challenge fields are cleared;
// audit history and the last balance snapshot are retained.
func (m *Member) Revoke() {
	m.Verified = false
	m.VerifiedAt = nil
	m.ClearChallenge()
}

// RefreshBalance updates the balance snapshot taken by a sweep.
func (m *Member) RefreshBalance(at time.Time, balance float64) {
	m.LastKnownBalance = &balance
	m.LastCheckedAt = &at
}
