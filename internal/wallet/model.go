package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the balance-holding record for one user. There is exactly one
// wallet per user, created together with the user and never deleted while the
// user exists. Balance and the daily counter are mutated only by the transfer
// engine under the wallet's exclusive lock.
//
// Committed-state invariants: Balance >= 0 and WithdrawnToday <= DailyWithdrawalLimit.
type Wallet struct {
	ID       string
	UserID   string
	Currency string

	Balance decimal.Decimal

	DailyWithdrawalLimit decimal.Decimal
	WithdrawnToday       decimal.Decimal
	// LastWithdrawalReset is the UTC midnight of the day the counter was last
	// zeroed. Nil until the first withdrawal-side operation.
	LastWithdrawalReset *time.Time

	Frozen       bool
	FrozenReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}
