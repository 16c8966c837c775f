package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kivu-pay/kivu_pay/internal/store"
)

// ErrNotFound occurs when no entry matches the requested reference.
var ErrNotFound = errors.New("ledger entry not found")

// Store is the append-only persistence contract for entries. Entries arrive
// already terminal and are never updated afterwards.
type Store interface {
	// Append writes one terminal entry inside the given atomic unit.
	Append(ctx context.Context, tx store.Tx, e *Entry) error

	// CountSince reports how many entries of any status the wallet accrued
	// at or after since. Feeds the frequency ceiling.
	CountSince(ctx context.Context, tx store.Tx, walletID string, since time.Time) (int, error)

	// SumCompletedDeposits totals completed deposit amounts on the wallet
	// at or after since. Feeds the rapid-withdrawal heuristic.
	SumCompletedDeposits(ctx context.Context, tx store.Tx, walletID string, since time.Time) (decimal.Decimal, error)

	// ListByWallet returns the wallet's entries newest first. Lock-free read.
	ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]Entry, error)

	// FindByReference returns every leg recorded under a reference number,
	// or ErrNotFound when there is none.
	FindByReference(ctx context.Context, reference string) ([]Entry, error)
}
