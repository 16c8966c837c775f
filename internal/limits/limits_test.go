package limits

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kivu-pay/kivu_pay/internal/wallet"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRollOverIfNeeded_FirstWithdrawalInitializesCounter(t *testing.T) {
	w := &wallet.Wallet{WithdrawnToday: decimal.NewFromInt(999)}
	now := time.Date(2024, 5, 10, 16, 45, 0, 0, time.UTC)

	if !RollOverIfNeeded(w, now) {
		t.Fatal("expected rollover with no prior reset")
	}
	if !w.WithdrawnToday.IsZero() {
		t.Fatalf("expected zeroed counter, got %s", w.WithdrawnToday)
	}
	if w.LastWithdrawalReset == nil || !w.LastWithdrawalReset.Equal(day(2024, 5, 10)) {
		t.Fatalf("expected reset at 2024-05-10 midnight, got %v", w.LastWithdrawalReset)
	}
}

func TestRollOverIfNeeded_NewCalendarDayResets(t *testing.T) {
	reset := day(2024, 5, 10)
	w := &wallet.Wallet{
		WithdrawnToday:      decimal.NewFromInt(4000),
		LastWithdrawalReset: &reset,
	}

	// 00:01 the next day is already a new calendar day.
	now := time.Date(2024, 5, 11, 0, 1, 0, 0, time.UTC)
	if !RollOverIfNeeded(w, now) {
		t.Fatal("expected rollover on the next calendar day")
	}
	if !w.WithdrawnToday.IsZero() {
		t.Fatalf("expected zeroed counter, got %s", w.WithdrawnToday)
	}
	if !w.LastWithdrawalReset.Equal(day(2024, 5, 11)) {
		t.Fatalf("expected reset at 2024-05-11 midnight, got %v", w.LastWithdrawalReset)
	}
}

func TestRollOverIfNeeded_SameDayKeepsCounter(t *testing.T) {
	reset := day(2024, 5, 10)
	w := &wallet.Wallet{
		WithdrawnToday:      decimal.NewFromInt(4000),
		LastWithdrawalReset: &reset,
	}

	now := time.Date(2024, 5, 10, 23, 59, 59, 0, time.UTC)
	if RollOverIfNeeded(w, now) {
		t.Fatal("unexpected rollover within the same calendar day")
	}
	if !w.WithdrawnToday.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("counter changed to %s", w.WithdrawnToday)
	}
}

func TestRollOverIfNeeded_NonUTCClockUsesUTCDay(t *testing.T) {
	reset := day(2024, 5, 10)
	w := &wallet.Wallet{
		WithdrawnToday:      decimal.NewFromInt(100),
		LastWithdrawalReset: &reset,
	}

	// 2024-05-10 21:00 -05:00 is 2024-05-11 02:00 UTC.
	loc := time.FixedZone("UTC-5", -5*3600)
	now := time.Date(2024, 5, 10, 21, 0, 0, 0, loc)
	if !RollOverIfNeeded(w, now) {
		t.Fatal("expected rollover, the UTC day advanced")
	}
	if !w.LastWithdrawalReset.Equal(day(2024, 5, 11)) {
		t.Fatalf("expected reset at 2024-05-11 midnight UTC, got %v", w.LastWithdrawalReset)
	}
}

func TestWouldExceed_ExactLimitIsAllowed(t *testing.T) {
	w := &wallet.Wallet{
		DailyWithdrawalLimit: decimal.NewFromInt(10000),
		WithdrawnToday:       decimal.NewFromInt(7500),
	}

	if WouldExceed(w, decimal.NewFromInt(2500)) {
		t.Fatal("landing exactly on the limit must be allowed")
	}
	if !WouldExceed(w, decimal.RequireFromString("2500.01")) {
		t.Fatal("one cent over the limit must be rejected")
	}
}

func TestRemaining_FloorsAtZero(t *testing.T) {
	w := &wallet.Wallet{
		DailyWithdrawalLimit: decimal.NewFromInt(10000),
		WithdrawnToday:       decimal.NewFromInt(2500),
	}
	if got := Remaining(w); !got.Equal(decimal.NewFromInt(7500)) {
		t.Fatalf("expected 7500 remaining, got %s", got)
	}

	w.WithdrawnToday = decimal.NewFromInt(12000)
	if got := Remaining(w); !got.IsZero() {
		t.Fatalf("expected zero remaining, got %s", got)
	}
}
