package limits

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kivu-pay/kivu_pay/internal/wallet"
)

// Day truncates t to the UTC midnight that starts its calendar day.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// RollOverIfNeeded zeroes the wallet's daily withdrawal counter when now falls
// on a later UTC calendar day than the last reset. The boundary is calendar
// midnight, not a sliding 24h window. Must run on the locked wallet before any
// limit check so reset and consumption stay consistent. Reports whether the
// wallet changed.
func RollOverIfNeeded(w *wallet.Wallet, now time.Time) bool {
	today := Day(now)
	if w.LastWithdrawalReset != nil && !w.LastWithdrawalReset.Before(today) {
		return false
	}
	w.WithdrawnToday = decimal.Zero
	w.LastWithdrawalReset = &today
	return true
}

// WouldExceed reports whether adding amount to today's withdrawals would push
// the counter past the wallet's daily limit. Landing exactly on the limit is
// allowed.
func WouldExceed(w *wallet.Wallet, amount decimal.Decimal) bool {
	return w.WithdrawnToday.Add(amount).GreaterThan(w.DailyWithdrawalLimit)
}

// Remaining returns today's unused withdrawal allowance, never negative.
func Remaining(w *wallet.Wallet) decimal.Decimal {
	left := w.DailyWithdrawalLimit.Sub(w.WithdrawnToday)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}
