package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind classifies what an entry did to its wallet.
type Kind string

const (
	KindDeposit          Kind = "deposit"
	KindWithdrawal       Kind = "withdrawal"
	KindTransferSent     Kind = "transfer_sent"
	KindTransferReceived Kind = "transfer_received"
)

// Status is the lifecycle state of an entry. Pending is the only non-terminal
// status; an entry never changes again once it leaves Pending.
type Status string

const (
	StatusPending      Status = "pending"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusFraudBlocked Status = "fraud_blocked"
)

// Entry is one row of a wallet's append-only history. Every attempted
// operation that reached its wallet lock leaves an entry behind, including
// rejected ones; rejected entries carry the untouched balance on both sides.
type Entry struct {
	ID              string          `json:"id"`
	WalletID        string          `json:"wallet_id"`
	Kind            Kind            `json:"kind"`
	Amount          decimal.Decimal `json:"amount"`
	BalanceBefore   decimal.Decimal `json:"balance_before"`
	BalanceAfter    decimal.Decimal `json:"balance_after"`
	Status          Status          `json:"status"`
	ReferenceNumber string          `json:"reference_number"`

	// CounterpartyWalletID names the other wallet of a transfer pair. Empty
	// for deposits and withdrawals.
	CounterpartyWalletID string `json:"counterparty_wallet_id,omitempty"`

	FlaggedForFraud bool   `json:"flagged_for_fraud"`
	FraudReason     string `json:"fraud_reason,omitempty"`
	FailureReason   string `json:"failure_reason,omitempty"`
	Description     string `json:"description,omitempty"`

	IPAddress string `json:"-"`
	UserAgent string `json:"-"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewEntry opens a pending entry for one attempted operation. The reference
// number is generated here; the receiving leg of a transfer overwrites its
// own so both legs share the sender's.
func NewEntry(walletID string, kind Kind, amount decimal.Decimal, at time.Time) *Entry {
	return &Entry{
		ID:              uuid.NewString(),
		WalletID:        walletID,
		Kind:            kind,
		Amount:          amount,
		Status:          StatusPending,
		ReferenceNumber: NewReference(),
		CreatedAt:       at.UTC(),
	}
}

// NewReference issues a unique reference number.
func NewReference() string {
	return uuid.NewString()
}

// Complete finalizes the entry with the balance movement it applied. No-op if
// the entry already left Pending.
func (e *Entry) Complete(before, after decimal.Decimal, at time.Time) {
	if e.Status != StatusPending {
		return
	}
	e.BalanceBefore = before
	e.BalanceAfter = after
	e.Status = StatusCompleted
	done := at.UTC()
	e.CompletedAt = &done
}

// Fail finalizes the entry for a validation rejection. The wallet was not
// touched, so both snapshots carry its current balance.
func (e *Entry) Fail(balance decimal.Decimal, reason string, at time.Time) {
	if e.Status != StatusPending {
		return
	}
	e.BalanceBefore = balance
	e.BalanceAfter = balance
	e.Status = StatusFailed
	e.FailureReason = reason
	done := at.UTC()
	e.CompletedAt = &done
}

// Block finalizes the entry for a fraud verdict. The wallet was not touched.
func (e *Entry) Block(balance decimal.Decimal, reason string, at time.Time) {
	if e.Status != StatusPending {
		return
	}
	e.BalanceBefore = balance
	e.BalanceAfter = balance
	e.Status = StatusFraudBlocked
	e.FlaggedForFraud = true
	e.FraudReason = reason
	done := at.UTC()
	e.CompletedAt = &done
}
