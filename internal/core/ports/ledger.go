package ports

import (
	"context"
	"time"
)

// TransferDeltas describes the balance movement a single transaction caused
// for the holder and treasury wallets, in ui amounts of the target mint.
type TransferDeltas struct {
	Signature     string
	Slot          uint64
	BlockTime     time.Time
	UserDelta     float64 // amount debited from the holder
	TreasuryDelta float64 // amount credited to the treasury
}

// LedgerClient is the query interface to the token ledger. Implementations
// must express all amounts as human-readable ui quantities, not raw base
// units, and may fail any call with a transient I/O error (callers wrap those
// as domain.ErrLedgerUnavailable).
type LedgerClient interface {
	// GetSupply returns the total ui supply of the mint.
	GetSupply(ctx context.Context, mint string) (float64, error)
	// GetBalance returns the wallet's total ui balance of the mint.
	GetBalance(ctx context.Context, wallet, mint string) (float64, error)
	// ListRecentSignatures returns up to limit transaction signatures for the
	// wallet, strictly newest-first. This ordering is a contract: the transfer
	// matcher walks the slice linearly and returns the first match.
	ListRecentSignatures(ctx context.Context, wallet string, limit int) ([]string, error)
	// GetTransferDeltas resolves one signature into the holder/treasury deltas
	// of the mint. A transaction whose metadata or balance snapshots are
	// missing yields an error wrapping ErrTransferUnreadable; the caller skips
	// it and keeps scanning.
	GetTransferDeltas(ctx context.Context, signature, wallet, treasury, mint string) (*TransferDeltas, error)
}
