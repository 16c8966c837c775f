package fraud

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kivu-pay/kivu_pay/internal/ledger"
	"github.com/kivu-pay/kivu_pay/internal/store"
	"github.com/kivu-pay/kivu_pay/internal/wallet"
)

// Block reasons recorded on fraud_blocked ledger entries.
const (
	ReasonAmountCeiling   = "amount exceeds maximum transaction limit"
	ReasonFrequency       = "too many transactions in the last hour"
	ReasonRapidWithdrawal = "large withdrawal shortly after deposit"
)

const (
	frequencyWindow = time.Hour
	depositWindow   = 30 * time.Minute
)

// rapidOutflowRatio is the share of recently deposited funds an outflow may
// reach before the rapid-withdrawal heuristic trips.
var rapidOutflowRatio = decimal.New(8, -1)

// History is the slice of transaction history the evaluator reads. Satisfied
// by ledger.Store.
type History interface {
	CountSince(ctx context.Context, tx store.Tx, walletID string, since time.Time) (int, error)
	SumCompletedDeposits(ctx context.Context, tx store.Tx, walletID string, since time.Time) (decimal.Decimal, error)
}

// Config carries the evaluator's thresholds.
type Config struct {
	MaxTransactionAmount   decimal.Decimal
	MaxTransactionsPerHour int
}

// Verdict is the outcome of one evaluation. A non-empty BlockReason means the
// operation must not mutate balances and its ledger entries must be recorded
// fraud_blocked. RiskScore is advisory and never blocks on its own.
type Verdict struct {
	BlockReason string
	RiskScore   int
}

// Blocked reports whether the verdict rejects the operation.
func (v Verdict) Blocked() bool {
	return v.BlockReason != ""
}

// Evaluator applies the configured heuristics to one operation at a time. It
// never mutates state; callers run it on the locked wallet before any balance
// write so a verdict can cancel the operation pre-commit.
type Evaluator struct {
	cfg     Config
	history History
}

// New builds an evaluator over the given history source.
func New(cfg Config, history History) *Evaluator {
	return &Evaluator{cfg: cfg, history: history}
}

// Evaluate runs the three heuristics in order and reports the first that
// trips. `now` anchors the trailing windows and must be the same instant the
// enclosing operation stamps on its ledger entries.
func (e *Evaluator) Evaluate(ctx context.Context, tx store.Tx, w *wallet.Wallet, amount decimal.Decimal, kind ledger.Kind, now time.Time) (Verdict, error) {
	hourCount, err := e.history.CountSince(ctx, tx, w.ID, now.Add(-frequencyWindow))
	if err != nil {
		return Verdict{}, err
	}
	verdict := Verdict{RiskScore: e.RiskScore(w, amount, hourCount, now)}

	if amount.GreaterThan(e.cfg.MaxTransactionAmount) {
		verdict.BlockReason = ReasonAmountCeiling
		return verdict, nil
	}

	if hourCount >= e.cfg.MaxTransactionsPerHour {
		verdict.BlockReason = ReasonFrequency
		return verdict, nil
	}

	if kind == ledger.KindWithdrawal || kind == ledger.KindTransferSent {
		deposits, err := e.history.SumCompletedDeposits(ctx, tx, w.ID, now.Add(-depositWindow))
		if err != nil {
			return Verdict{}, err
		}
		if deposits.IsPositive() && amount.GreaterThan(deposits.Mul(rapidOutflowRatio)) {
			verdict.BlockReason = ReasonRapidWithdrawal
			return verdict, nil
		}
	}

	return verdict, nil
}

// RiskScore grades an operation from 0 to 100 for monitoring. Amount ratio
// weighs 30, hourly frequency ratio 40, and account age adds 30 under a week
// or 15 under a month.
func (e *Evaluator) RiskScore(w *wallet.Wallet, amount decimal.Decimal, hourCount int, now time.Time) int {
	one := decimal.NewFromInt(1)
	score := decimal.Zero

	if e.cfg.MaxTransactionAmount.IsPositive() {
		ratio := amount.Div(e.cfg.MaxTransactionAmount)
		if ratio.GreaterThan(one) {
			ratio = one
		}
		score = score.Add(ratio.Mul(decimal.NewFromInt(30)))
	}

	if e.cfg.MaxTransactionsPerHour > 0 {
		ratio := decimal.NewFromInt(int64(hourCount)).Div(decimal.NewFromInt(int64(e.cfg.MaxTransactionsPerHour)))
		if ratio.GreaterThan(one) {
			ratio = one
		}
		score = score.Add(ratio.Mul(decimal.NewFromInt(40)))
	}

	switch age := now.Sub(w.CreatedAt); {
	case age < 7*24*time.Hour:
		score = score.Add(decimal.NewFromInt(30))
	case age < 30*24*time.Hour:
		score = score.Add(decimal.NewFromInt(15))
	}

	return int(score.IntPart())
}
