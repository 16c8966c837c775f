package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kivu-pay/kivu_pay/internal/fraud"
	"github.com/kivu-pay/kivu_pay/internal/identity"
	"github.com/kivu-pay/kivu_pay/internal/ledger"
	"github.com/kivu-pay/kivu_pay/internal/limits"
	"github.com/kivu-pay/kivu_pay/internal/logging"
	"github.com/kivu-pay/kivu_pay/internal/notification"
	"github.com/kivu-pay/kivu_pay/internal/store"
	"github.com/kivu-pay/kivu_pay/internal/wallet"
)

// KYC reads a user's verification status inside an atomic unit. Satisfied by
// identity.Repository.
type KYC interface {
	KYCStatus(ctx context.Context, tx store.Tx, userID string) (identity.KYCStatus, error)
}

// Config carries the engine's policy thresholds.
type Config struct {
	// KYCExemptThreshold is the largest outflow allowed without verified
	// KYC.
	KYCExemptThreshold decimal.Decimal
}

// Deps bundles the collaborators one engine drives. Notifier and Logger may
// be nil.
type Deps struct {
	Atomic   store.Atomic
	Wallets  wallet.Store
	Ledger   ledger.Store
	KYC      KYC
	Fraud    *fraud.Evaluator
	Notifier notification.Notifier
	Logger   *slog.Logger
}

// ClientMeta carries request attribution stamped onto ledger entries.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// WalletView is the read model returned to wallet owners.
type WalletView struct {
	WalletID             string          `json:"wallet_id"`
	UserID               string          `json:"user_id"`
	Currency             string          `json:"currency"`
	Balance              decimal.Decimal `json:"balance"`
	DailyWithdrawalLimit decimal.Decimal `json:"daily_withdrawal_limit"`
	WithdrawnToday       decimal.Decimal `json:"withdrawn_today"`
	RemainingToday       decimal.Decimal `json:"remaining_today"`
	Frozen               bool            `json:"frozen"`
	FrozenReason         string          `json:"frozen_reason,omitempty"`
}

// TransferReceipt reports a committed transfer from the sender's side.
type TransferReceipt struct {
	ReferenceNumber string          `json:"reference_number"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	SenderBalance   decimal.Decimal `json:"sender_balance"`
	CompletedAt     time.Time       `json:"completed_at"`
}

// Engine orchestrates every balance mutation. Each operation locks the
// wallets it touches inside one atomic unit, validates, consults the fraud
// evaluator, then commits the balance change together with its ledger rows.
// Rejected operations commit their audit rows and nothing else.
type Engine struct {
	atomic   store.Atomic
	wallets  wallet.Store
	ledger   ledger.Store
	kyc      KYC
	fraud    *fraud.Evaluator
	notifier notification.Notifier
	logger   *slog.Logger
	cfg      Config

	now func() time.Time
}

// New builds an engine over the given collaborators.
func New(deps Deps, cfg Config) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{
		atomic:   deps.Atomic,
		wallets:  deps.Wallets,
		ledger:   deps.Ledger,
		kyc:      deps.KYC,
		fraud:    deps.Fraud,
		notifier: deps.Notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Deposit credits the user's wallet. Inbound funds skip the fraud evaluator;
// the only rejection is a frozen wallet, which still records its audit row.
func (e *Engine) Deposit(ctx context.Context, userID string, amount decimal.Decimal, description string, meta ClientMeta) (*ledger.Entry, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	now := e.now().UTC()

	var (
		entry *ledger.Entry
		opErr error
	)
	err := e.atomic.Within(ctx, func(tx store.Tx) error {
		w, err := e.wallets.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		entry = newEntry(w, ledger.KindDeposit, amount, description, meta, now)

		if w.Frozen {
			opErr = frozenErr(w)
			entry.Fail(w.Balance, opErr.Error(), now)
			return e.ledger.Append(ctx, tx, entry)
		}

		before := w.Balance
		w.Balance = w.Balance.Add(amount)
		entry.Complete(before, w.Balance, now)
		if err := e.ledger.Append(ctx, tx, entry); err != nil {
			return err
		}
		return e.wallets.Save(ctx, tx, w)
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}

	e.logger.Info("deposit completed",
		"user_id", userID, "amount", amount.String(), "reference", entry.ReferenceNumber)
	return entry, nil
}

// Withdraw debits the user's wallet after the full validation chain: freeze,
// KYC ceiling, balance, daily limit rollover and check, then the fraud
// evaluator. Every rejection past the lock commits a Failed or FraudBlocked
// row with the balance untouched.
func (e *Engine) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, description string, meta ClientMeta) (*ledger.Entry, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	now := e.now().UTC()

	var (
		entry *ledger.Entry
		opErr error
	)
	err := e.atomic.Within(ctx, func(tx store.Tx) error {
		w, err := e.wallets.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		entry = newEntry(w, ledger.KindWithdrawal, amount, description, meta, now)

		if w.Frozen {
			opErr = frozenErr(w)
		} else if gateErr := e.gateOutflow(ctx, tx, w, amount, now); gateErr != nil {
			if !isRejection(gateErr) {
				return gateErr
			}
			opErr = gateErr
		}
		if opErr != nil {
			entry.Fail(w.Balance, opErr.Error(), now)
			return e.ledger.Append(ctx, tx, entry)
		}

		verdict, err := e.fraud.Evaluate(ctx, tx, w, amount, ledger.KindWithdrawal, now)
		if err != nil {
			return err
		}
		if verdict.Blocked() {
			opErr = fmt.Errorf("%w: %s", ErrFraudDetected, verdict.BlockReason)
			entry.Block(w.Balance, verdict.BlockReason, now)
			e.logger.Warn("withdrawal blocked",
				"user_id", userID, "reason", verdict.BlockReason, "risk_score", verdict.RiskScore)
			return e.ledger.Append(ctx, tx, entry)
		}

		before := w.Balance
		w.Balance = w.Balance.Sub(amount)
		w.WithdrawnToday = w.WithdrawnToday.Add(amount)
		entry.Complete(before, w.Balance, now)
		if err := e.ledger.Append(ctx, tx, entry); err != nil {
			return err
		}
		return e.wallets.Save(ctx, tx, w)
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		e.alertIfBlocked(ctx, userID, "withdrawal", amount, entry, opErr)
		return nil, opErr
	}

	e.logger.Info("withdrawal completed",
		"user_id", userID, "amount", amount.String(), "reference", entry.ReferenceNumber)
	return entry, nil
}

// Transfer moves funds between two users. Wallets are locked in ascending
// byte order of user ID so concurrent transfers over the same pair can never
// deadlock, whichever direction they run. Every outcome past the locks
// commits both legs under one reference number.
func (e *Engine) Transfer(ctx context.Context, fromUserID, toUserID string, amount decimal.Decimal, description string, meta ClientMeta) (*TransferReceipt, error) {
	if fromUserID == toUserID {
		return nil, ErrSelfTransfer
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	now := e.now().UTC()

	var (
		receipt *TransferReceipt
		sent    *ledger.Entry
		opErr   error
	)
	err := e.atomic.Within(ctx, func(tx store.Tx) error {
		first, second := fromUserID, toUserID
		if second < first {
			first, second = second, first
		}
		byUser := make(map[string]*wallet.Wallet, 2)
		for _, userID := range []string{first, second} {
			w, err := e.wallets.GetForUpdate(ctx, tx, userID)
			if err != nil {
				return err
			}
			byUser[userID] = w
		}
		from, to := byUser[fromUserID], byUser[toUserID]

		sent = newEntry(from, ledger.KindTransferSent, amount, description, meta, now)
		recv := newEntry(to, ledger.KindTransferReceived, amount, description, meta, now)
		recv.ReferenceNumber = sent.ReferenceNumber
		sent.CounterpartyWalletID = to.ID
		recv.CounterpartyWalletID = from.ID

		switch {
		case from.Frozen:
			opErr = frozenErr(from)
		case to.Frozen:
			opErr = frozenErr(to)
		default:
			if gateErr := e.gateOutflow(ctx, tx, from, amount, now); gateErr != nil {
				if !isRejection(gateErr) {
					return gateErr
				}
				opErr = gateErr
			}
		}
		if opErr != nil {
			sent.Fail(from.Balance, opErr.Error(), now)
			recv.Fail(to.Balance, opErr.Error(), now)
			return appendBoth(ctx, tx, e.ledger, sent, recv)
		}

		verdict, err := e.fraud.Evaluate(ctx, tx, from, amount, ledger.KindTransferSent, now)
		if err != nil {
			return err
		}
		if verdict.Blocked() {
			opErr = fmt.Errorf("%w: %s", ErrFraudDetected, verdict.BlockReason)
			sent.Block(from.Balance, verdict.BlockReason, now)
			recv.Block(to.Balance, verdict.BlockReason, now)
			e.logger.Warn("transfer blocked",
				"from", fromUserID, "to", toUserID,
				"reason", verdict.BlockReason, "risk_score", verdict.RiskScore)
			return appendBoth(ctx, tx, e.ledger, sent, recv)
		}

		fromBefore, toBefore := from.Balance, to.Balance
		from.Balance = from.Balance.Sub(amount)
		to.Balance = to.Balance.Add(amount)
		from.WithdrawnToday = from.WithdrawnToday.Add(amount)
		sent.Complete(fromBefore, from.Balance, now)
		recv.Complete(toBefore, to.Balance, now)

		if err := appendBoth(ctx, tx, e.ledger, sent, recv); err != nil {
			return err
		}
		if err := e.wallets.Save(ctx, tx, from); err != nil {
			return err
		}
		if err := e.wallets.Save(ctx, tx, to); err != nil {
			return err
		}

		receipt = &TransferReceipt{
			ReferenceNumber: sent.ReferenceNumber,
			Amount:          amount,
			Currency:        from.Currency,
			SenderBalance:   from.Balance,
			CompletedAt:     now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		e.alertIfBlocked(ctx, fromUserID, "transfer", amount, sent, opErr)
		return nil, opErr
	}

	e.logger.Info("transfer completed",
		"from", fromUserID, "to", toUserID,
		"amount", amount.String(), "reference", receipt.ReferenceNumber)
	if e.notifier != nil {
		_ = e.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindTransferReceived,
			Destination: toUserID,
			Body:        fmt.Sprintf("You received %s %s", amount, receipt.Currency),
			Reference:   receipt.ReferenceNumber,
		})
	}
	return receipt, nil
}

// Freeze stops all operations on the user's wallet until unfrozen.
func (e *Engine) Freeze(ctx context.Context, userID, reason string) error {
	err := e.atomic.Within(ctx, func(tx store.Tx) error {
		w, err := e.wallets.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		w.Frozen = true
		w.FrozenReason = reason
		return e.wallets.Save(ctx, tx, w)
	})
	if err != nil {
		return err
	}

	e.logger.Warn("wallet frozen", "user_id", userID, "reason", reason)
	if e.notifier != nil {
		_ = e.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindWalletFrozen,
			Destination: userID,
			Body:        "Your wallet has been frozen. Contact support.",
		})
	}
	return nil
}

// Unfreeze lifts a freeze and clears its reason.
func (e *Engine) Unfreeze(ctx context.Context, userID string) error {
	err := e.atomic.Within(ctx, func(tx store.Tx) error {
		w, err := e.wallets.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		w.Frozen = false
		w.FrozenReason = ""
		return e.wallets.Save(ctx, tx, w)
	})
	if err != nil {
		return err
	}
	e.logger.Info("wallet unfrozen", "user_id", userID)
	return nil
}

// GetWallet returns the owner's view of their wallet. The daily counter is
// shown as of today; the reset itself lands when the next withdrawal commits.
func (e *Engine) GetWallet(ctx context.Context, userID string) (*WalletView, error) {
	w, err := e.wallets.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	limits.RollOverIfNeeded(w, e.now())
	return &WalletView{
		WalletID:             w.ID,
		UserID:               w.UserID,
		Currency:             w.Currency,
		Balance:              w.Balance,
		DailyWithdrawalLimit: w.DailyWithdrawalLimit,
		WithdrawnToday:       w.WithdrawnToday,
		RemainingToday:       limits.Remaining(w),
		Frozen:               w.Frozen,
		FrozenReason:         w.FrozenReason,
	}, nil
}

// History returns the user's ledger entries, newest first.
func (e *Engine) History(ctx context.Context, userID string, limit, offset int) ([]ledger.Entry, error) {
	w, err := e.wallets.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return e.ledger.ListByWallet(ctx, w.ID, limit, offset)
}

// FindTransfer returns every ledger leg recorded under a reference number.
func (e *Engine) FindTransfer(ctx context.Context, reference string) ([]ledger.Entry, error) {
	return e.ledger.FindByReference(ctx, reference)
}

// gateOutflow runs the post-freeze validations for money leaving a wallet:
// KYC ceiling, balance, daily limit rollover and check. Business rejections
// satisfy isRejection; anything else is an infrastructure failure the caller
// must roll the unit back on.
func (e *Engine) gateOutflow(ctx context.Context, tx store.Tx, w *wallet.Wallet, amount decimal.Decimal, now time.Time) error {
	if amount.GreaterThan(e.cfg.KYCExemptThreshold) {
		status, err := e.kyc.KYCStatus(ctx, tx, w.UserID)
		if err != nil {
			return err
		}
		if status != identity.KYCVerified {
			return ErrKYCRequired
		}
	}
	if w.Balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	limits.RollOverIfNeeded(w, now)
	if limits.WouldExceed(w, amount) {
		return ErrLimitExceeded
	}
	return nil
}

func (e *Engine) alertIfBlocked(ctx context.Context, userID, operation string, amount decimal.Decimal, entry *ledger.Entry, opErr error) {
	if e.notifier == nil || !errors.Is(opErr, ErrFraudDetected) {
		return
	}
	reference := ""
	if entry != nil {
		reference = entry.ReferenceNumber
	}
	_ = e.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindFraudAlert,
		Destination: userID,
		Body:        fmt.Sprintf("Your %s of %s was blocked by our fraud checks.", operation, amount),
		Reference:   reference,
	})
}

func newEntry(w *wallet.Wallet, kind ledger.Kind, amount decimal.Decimal, description string, meta ClientMeta, now time.Time) *ledger.Entry {
	entry := ledger.NewEntry(w.ID, kind, amount, now)
	entry.Description = description
	entry.IPAddress = meta.IPAddress
	entry.UserAgent = meta.UserAgent
	return entry
}

func appendBoth(ctx context.Context, tx store.Tx, s ledger.Store, sent, recv *ledger.Entry) error {
	if err := s.Append(ctx, tx, sent); err != nil {
		return err
	}
	return s.Append(ctx, tx, recv)
}

func frozenErr(w *wallet.Wallet) error {
	if w.FrozenReason == "" {
		return ErrWalletFrozen
	}
	return fmt.Errorf("%w: %s", ErrWalletFrozen, w.FrozenReason)
}
