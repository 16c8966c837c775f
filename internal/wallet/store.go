package wallet

import (
	"context"
	"errors"

	"github.com/kivu-pay/kivu_pay/internal/store"
)

// ErrNotFound occurs when no wallet exists for the requested user.
var ErrNotFound = errors.New("wallet not found")

// Store persists wallets.
//
// Lock-order invariant: when one atomic unit locks more than one wallet, it
// must call GetForUpdate in ascending byte order of user ID. This total order
// is shared by all callers and is what makes multi-wallet operations
// deadlock-free.
type Store interface {
	// Create inserts a wallet inside the given atomic unit.
	Create(ctx context.Context, tx store.Tx, w *Wallet) error

	// Get returns the wallet for a user without taking any lock. For
	// read-only views; the result may be stale the moment it returns.
	Get(ctx context.Context, userID string) (*Wallet, error)

	// GetForUpdate loads the wallet for a user and acquires its exclusive
	// lock, scoped to the enclosing atomic unit. Concurrent mutators of the
	// same wallet block until the unit ends; waits are bounded and surface
	// store.ErrLockTimeout.
	GetForUpdate(ctx context.Context, tx store.Tx, userID string) (*Wallet, error)

	// Save persists all mutable wallet fields inside the given atomic unit.
	Save(ctx context.Context, tx store.Tx, w *Wallet) error
}
