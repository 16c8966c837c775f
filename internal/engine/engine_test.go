package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kivu-pay/kivu_pay/internal/fraud"
	"github.com/kivu-pay/kivu_pay/internal/identity"
	"github.com/kivu-pay/kivu_pay/internal/ledger"
	"github.com/kivu-pay/kivu_pay/internal/store/memstore"
	"github.com/kivu-pay/kivu_pay/internal/wallet"
)

func testEngine(s *memstore.Store) *Engine {
	return New(Deps{
		Atomic:  s,
		Wallets: s.Wallets(),
		Ledger:  s.Ledger(),
		KYC:     s.Users(),
		Fraud: fraud.New(fraud.Config{
			MaxTransactionAmount:   decimal.NewFromInt(50000),
			MaxTransactionsPerHour: 20,
		}, s.Ledger()),
	}, Config{KYCExemptThreshold: decimal.NewFromInt(5000)})
}

// seedAccount creates a verified user with a seasoned wallet. Balance is
// seeded directly so the fraud deposit window starts empty.
func seedAccount(s *memstore.Store, userID string, balance int64) *wallet.Wallet {
	created := time.Now().UTC().Add(-60 * 24 * time.Hour)
	w := wallet.Wallet{
		ID:                   "wallet-" + userID,
		UserID:               userID,
		Currency:             "CDF",
		Balance:              decimal.NewFromInt(balance),
		DailyWithdrawalLimit: decimal.NewFromInt(10000),
		WithdrawnToday:       decimal.Zero,
		CreatedAt:            created,
		UpdatedAt:            created,
	}
	memstore.SeedWallet(s, w)
	memstore.SeedUser(s, identity.User{
		ID:        userID,
		Phone:     "+243" + userID,
		Role:      identity.RoleUser,
		KYCStatus: identity.KYCVerified,
		CreatedAt: created,
	})
	return &w
}

func mustBalance(t *testing.T, s *memstore.Store, userID string, want int64) {
	t.Helper()
	w, err := s.Wallets().Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("get wallet %s: %v", userID, err)
	}
	if !w.Balance.Equal(decimal.NewFromInt(want)) {
		t.Fatalf("wallet %s: expected balance %d, got %s", userID, want, w.Balance)
	}
}

func walletEntries(t *testing.T, s *memstore.Store, walletID string) []ledger.Entry {
	t.Helper()
	entries, err := s.Ledger().ListByWallet(context.Background(), walletID, 100, 0)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	return entries
}

func TestDeposit_CreditsWalletAndWritesEntry(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)
	w := seedAccount(s, "alice", 100)
	ctx := context.Background()

	entry, err := eng.Deposit(ctx, "alice", decimal.NewFromInt(250), "salary", ClientMeta{IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	mustBalance(t, s, "alice", 350)
	if entry.Status != ledger.StatusCompleted {
		t.Fatalf("expected completed entry, got %s", entry.Status)
	}
	if !entry.BalanceBefore.Equal(decimal.NewFromInt(100)) || !entry.BalanceAfter.Equal(decimal.NewFromInt(350)) {
		t.Fatalf("bad snapshots: %s -> %s", entry.BalanceBefore, entry.BalanceAfter)
	}

	entries := walletEntries(t, s, w.ID)
	if len(entries) != 1 || entries[0].Kind != ledger.KindDeposit {
		t.Fatalf("expected one deposit entry, got %v", entries)
	}
	if entries[0].IPAddress != "10.0.0.1" {
		t.Fatalf("client metadata not recorded: %q", entries[0].IPAddress)
	}
}

func TestDeposit_RejectsNonPositiveAmounts(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)
	w := seedAccount(s, "alice", 100)
	ctx := context.Background()

	if _, err := eng.Deposit(ctx, "alice", decimal.Zero, "", ClientMeta{}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := eng.Deposit(ctx, "alice", decimal.NewFromInt(-5), "", ClientMeta{}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if entries := walletEntries(t, s, w.ID); len(entries) != 0 {
		t.Fatalf("rejected amounts must not reach the ledger, got %v", entries)
	}
}

func TestWithdraw_InsufficientBalanceWritesFailedRow(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)
	w := seedAccount(s, "alice", 900)
	ctx := context.Background()

	_, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(2000), "rent", ClientMeta{})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	mustBalance(t, s, "alice", 900)
	entries := walletEntries(t, s, w.ID)
	if len(entries) != 1 {
		t.Fatalf("expected one audit row, got %d", len(entries))
	}
	e := entries[0]
	if e.Status != ledger.StatusFailed {
		t.Fatalf("expected failed row, got %s", e.Status)
	}
	if !e.BalanceBefore.Equal(decimal.NewFromInt(900)) || !e.BalanceAfter.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("failed row must not move balance: %s -> %s", e.BalanceBefore, e.BalanceAfter)
	}
	if e.FailureReason == "" {
		t.Fatal("expected a failure reason on the audit row")
	}
}

func TestWithdraw_DailyLimitBoundary(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)
	w := seedAccount(s, "alice", 40000)
	ctx := context.Background()

	if _, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(6000), "", ClientMeta{}); err != nil {
		t.Fatalf("first withdrawal: %v", err)
	}
	// 6000 + 4000 lands exactly on the 10000 limit and must pass.
	if _, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(4000), "", ClientMeta{}); err != nil {
		t.Fatalf("withdrawal to the exact limit: %v", err)
	}
	if _, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(1), "", ClientMeta{}); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}

	mustBalance(t, s, "alice", 30000)
	got, err := s.Wallets().Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.WithdrawnToday.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("expected counter 10000, got %s", got.WithdrawnToday)
	}

	entries := walletEntries(t, s, w.ID)
	if len(entries) != 3 {
		t.Fatalf("expected 3 rows (2 completed, 1 failed), got %d", len(entries))
	}
}

func TestWithdraw_KYCGate(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)
	w := seedAccount(s, "alice", 30000)
	w.DailyWithdrawalLimit = decimal.NewFromInt(50000)
	memstore.SeedWallet(s, *w)
	memstore.SeedUser(s, identity.User{
		ID:        "alice",
		Phone:     "+243alice",
		Role:      identity.RoleUser,
		KYCStatus: identity.KYCNotStarted,
		CreatedAt: w.CreatedAt,
	})
	ctx := context.Background()

	// Exactly at the threshold stays exempt.
	if _, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(5000), "", ClientMeta{}); err != nil {
		t.Fatalf("threshold-exempt withdrawal: %v", err)
	}

	_, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(5001), "", ClientMeta{})
	if !errors.Is(err, ErrKYCRequired) {
		t.Fatalf("expected ErrKYCRequired, got %v", err)
	}
	mustBalance(t, s, "alice", 25000)

	if err := s.Users().SetKYCStatus(ctx, "alice", identity.KYCVerified); err != nil {
		t.Fatalf("verify user: %v", err)
	}
	if _, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(5001), "", ClientMeta{}); err != nil {
		t.Fatalf("verified withdrawal: %v", err)
	}
	mustBalance(t, s, "alice", 19999)
}

func TestTransfer_MovesFundsWithPairedEntries(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)
	alice := seedAccount(s, "alice", 1000)
	bob := seedAccount(s, "bob", 50)
	ctx := context.Background()

	receipt, err := eng.Transfer(ctx, "alice", "bob", decimal.NewFromInt(300), "lunch", ClientMeta{})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	mustBalance(t, s, "alice", 700)
	mustBalance(t, s, "bob", 350)
	if !receipt.SenderBalance.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("receipt balance %s, want 700", receipt.SenderBalance)
	}

	legs, err := eng.FindTransfer(ctx, receipt.ReferenceNumber)
	if err != nil {
		t.Fatalf("find transfer: %v", err)
	}
	if len(legs) != 2 {
		t.Fatalf("expected two legs, got %d", len(legs))
	}

	var sent, recv *ledger.Entry
	for i := range legs {
		switch legs[i].Kind {
		case ledger.KindTransferSent:
			sent = &legs[i]
		case ledger.KindTransferReceived:
			recv = &legs[i]
		}
	}
	if sent == nil || recv == nil {
		t.Fatalf("missing leg kinds: %v", legs)
	}
	if sent.WalletID != alice.ID || recv.WalletID != bob.ID {
		t.Fatalf("legs on wrong wallets: %s %s", sent.WalletID, recv.WalletID)
	}
	if sent.CounterpartyWalletID != bob.ID || recv.CounterpartyWalletID != alice.ID {
		t.Fatalf("counterparties wrong: %s %s", sent.CounterpartyWalletID, recv.CounterpartyWalletID)
	}

	// The pair's balance deltas cancel out.
	sentDelta := sent.BalanceAfter.Sub(sent.BalanceBefore)
	recvDelta := recv.BalanceAfter.Sub(recv.BalanceBefore)
	if !sentDelta.Add(recvDelta).IsZero() {
		t.Fatalf("legs do not net to zero: %s and %s", sentDelta, recvDelta)
	}
}

func TestTransfer_SelfTransferRejected(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)
	w := seedAccount(s, "alice", 1000)

	_, err := eng.Transfer(context.Background(), "alice", "alice", decimal.NewFromInt(10), "", ClientMeta{})
	if !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("expected ErrSelfTransfer, got %v", err)
	}
	if entries := walletEntries(t, s, w.ID); len(entries) != 0 {
		t.Fatalf("self transfer must not reach the ledger, got %v", entries)
	}
	mustBalance(t, s, "alice", 1000)
}

func TestTransfer_CountsAgainstSenderDailyLimit(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)
	seedAccount(s, "alice", 40000)
	seedAccount(s, "bob", 0)
	ctx := context.Background()

	if _, err := eng.Transfer(ctx, "alice", "bob", decimal.NewFromInt(7000), "", ClientMeta{}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(4000), "", ClientMeta{}); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded after transfer consumed the limit, got %v", err)
	}
	if _, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(3000), "", ClientMeta{}); err != nil {
		t.Fatalf("withdrawal inside the remaining limit: %v", err)
	}
	mustBalance(t, s, "bob", 7000)
	mustBalance(t, s, "alice", 30000)
}

func TestWithdraw_FraudBlockLeavesWalletUntouched(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)
	w := seedAccount(s, "alice", 100000)
	w.DailyWithdrawalLimit = decimal.NewFromInt(100000)
	memstore.SeedWallet(s, *w)
	ctx := context.Background()

	_, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(60000), "", ClientMeta{})
	if !errors.Is(err, ErrFraudDetected) {
		t.Fatalf("expected ErrFraudDetected, got %v", err)
	}

	got, err := s.Wallets().Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Balance.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("blocked withdrawal moved balance: %s", got.Balance)
	}
	if !got.WithdrawnToday.IsZero() {
		t.Fatalf("blocked withdrawal consumed the daily counter: %s", got.WithdrawnToday)
	}

	entries := walletEntries(t, s, w.ID)
	if len(entries) != 1 {
		t.Fatalf("expected one audit row, got %d", len(entries))
	}
	e := entries[0]
	if e.Status != ledger.StatusFraudBlocked || !e.FlaggedForFraud {
		t.Fatalf("expected flagged fraud_blocked row, got %s flagged=%v", e.Status, e.FlaggedForFraud)
	}
	if e.FraudReason != fraud.ReasonAmountCeiling {
		t.Fatalf("expected ceiling reason, got %q", e.FraudReason)
	}
}

func TestWithdraw_FrequencyCeiling(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)
	w := seedAccount(s, "alice", 5000)
	ctx := context.Background()

	recent := time.Now().UTC().Add(-10 * time.Minute)
	for i := 0; i < 20; i++ {
		e := ledger.NewEntry(w.ID, ledger.KindWithdrawal, decimal.NewFromInt(10), recent)
		e.Fail(w.Balance, "insufficient balance", recent)
		memstore.SeedEntry(s, *e)
	}

	_, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(10), "", ClientMeta{})
	if !errors.Is(err, ErrFraudDetected) {
		t.Fatalf("expected ErrFraudDetected, got %v", err)
	}
	mustBalance(t, s, "alice", 5000)

	entries := walletEntries(t, s, w.ID)
	if len(entries) != 21 {
		t.Fatalf("expected the blocked attempt appended, got %d rows", len(entries))
	}
}

func TestWithdraw_RapidWithdrawalAfterDeposit(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)
	seedAccount(s, "alice", 200)
	ctx := context.Background()

	if _, err := eng.Deposit(ctx, "alice", decimal.NewFromInt(1000), "", ClientMeta{}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// 801 is over 80% of the 1000 just deposited.
	_, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(801), "", ClientMeta{})
	if !errors.Is(err, ErrFraudDetected) {
		t.Fatalf("expected ErrFraudDetected, got %v", err)
	}
	mustBalance(t, s, "alice", 1200)

	if _, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(800), "", ClientMeta{}); err != nil {
		t.Fatalf("withdrawal at the 80%% edge: %v", err)
	}
	mustBalance(t, s, "alice", 400)
}

func TestWithdraw_CounterRollsOverOnNewDay(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)
	seedAccount(s, "alice", 40000)
	ctx := context.Background()

	day1 := time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 6, 2, 0, 30, 0, 0, time.UTC)

	eng.now = func() time.Time { return day1 }
	if _, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(6000), "", ClientMeta{}); err != nil {
		t.Fatalf("day one withdrawal: %v", err)
	}
	if _, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(5000), "", ClientMeta{}); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded on day one, got %v", err)
	}

	eng.now = func() time.Time { return day2 }
	if _, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(5000), "", ClientMeta{}); err != nil {
		t.Fatalf("day two withdrawal after rollover: %v", err)
	}

	got, err := s.Wallets().Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.WithdrawnToday.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("expected counter 5000 after rollover, got %s", got.WithdrawnToday)
	}
	wantReset := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	if got.LastWithdrawalReset == nil || !got.LastWithdrawalReset.Equal(wantReset) {
		t.Fatalf("expected reset at %v, got %v", wantReset, got.LastWithdrawalReset)
	}
	mustBalance(t, s, "alice", 29000)
}

func TestFreezeBlocksOperationsUntilUnfrozen(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)
	w := seedAccount(s, "alice", 1000)
	ctx := context.Background()

	if err := eng.Freeze(ctx, "alice", "chargeback investigation"); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	_, err := eng.Deposit(ctx, "alice", decimal.NewFromInt(100), "", ClientMeta{})
	if !errors.Is(err, ErrWalletFrozen) {
		t.Fatalf("expected ErrWalletFrozen, got %v", err)
	}
	if _, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(100), "", ClientMeta{}); !errors.Is(err, ErrWalletFrozen) {
		t.Fatalf("expected ErrWalletFrozen, got %v", err)
	}
	mustBalance(t, s, "alice", 1000)

	entries := walletEntries(t, s, w.ID)
	if len(entries) != 2 {
		t.Fatalf("expected two failed audit rows, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Status != ledger.StatusFailed {
			t.Fatalf("expected failed rows, got %s", e.Status)
		}
	}

	if err := eng.Unfreeze(ctx, "alice"); err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	if _, err := eng.Deposit(ctx, "alice", decimal.NewFromInt(100), "", ClientMeta{}); err != nil {
		t.Fatalf("deposit after unfreeze: %v", err)
	}
	mustBalance(t, s, "alice", 1100)
}

func TestTransfer_KYCGateAppliesToSender(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)
	w := seedAccount(s, "alice", 30000)
	w.DailyWithdrawalLimit = decimal.NewFromInt(50000)
	memstore.SeedWallet(s, *w)
	memstore.SeedUser(s, identity.User{
		ID:        "alice",
		Phone:     "+243alice",
		Role:      identity.RoleUser,
		KYCStatus: identity.KYCPending,
		CreatedAt: w.CreatedAt,
	})
	bob := seedAccount(s, "bob", 0)
	ctx := context.Background()

	_, err := eng.Transfer(ctx, "alice", "bob", decimal.NewFromInt(5001), "", ClientMeta{})
	if !errors.Is(err, ErrKYCRequired) {
		t.Fatalf("expected ErrKYCRequired, got %v", err)
	}
	mustBalance(t, s, "alice", 30000)
	mustBalance(t, s, "bob", 0)

	sentRows := walletEntries(t, s, w.ID)
	recvRows := walletEntries(t, s, bob.ID)
	if len(sentRows) != 1 || len(recvRows) != 1 {
		t.Fatalf("expected one failed leg per wallet, got %d and %d", len(sentRows), len(recvRows))
	}
	if sentRows[0].ReferenceNumber != recvRows[0].ReferenceNumber {
		t.Fatal("failed legs must share one reference number")
	}
	if sentRows[0].Status != ledger.StatusFailed || recvRows[0].Status != ledger.StatusFailed {
		t.Fatalf("expected failed legs, got %s and %s", sentRows[0].Status, recvRows[0].Status)
	}
}

func TestTransfer_FraudBlockWritesBothLegs(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)
	alice := seedAccount(s, "alice", 100000)
	alice.DailyWithdrawalLimit = decimal.NewFromInt(100000)
	memstore.SeedWallet(s, *alice)
	bob := seedAccount(s, "bob", 500)
	ctx := context.Background()

	_, err := eng.Transfer(ctx, "alice", "bob", decimal.NewFromInt(60000), "", ClientMeta{})
	if !errors.Is(err, ErrFraudDetected) {
		t.Fatalf("expected ErrFraudDetected, got %v", err)
	}
	mustBalance(t, s, "alice", 100000)
	mustBalance(t, s, "bob", 500)

	sentRows := walletEntries(t, s, alice.ID)
	recvRows := walletEntries(t, s, bob.ID)
	if len(sentRows) != 1 || len(recvRows) != 1 {
		t.Fatalf("expected one blocked leg per wallet, got %d and %d", len(sentRows), len(recvRows))
	}
	if sentRows[0].Status != ledger.StatusFraudBlocked || recvRows[0].Status != ledger.StatusFraudBlocked {
		t.Fatalf("expected fraud_blocked legs, got %s and %s", sentRows[0].Status, recvRows[0].Status)
	}
	if sentRows[0].ReferenceNumber != recvRows[0].ReferenceNumber {
		t.Fatal("blocked legs must share one reference number")
	}
}

func TestConcurrentWithdrawals_NeverOverdraw(t *testing.T) {
	s := memstore.New(5 * time.Second)
	eng := testEngine(s)
	w := seedAccount(s, "alice", 1000)
	w.DailyWithdrawalLimit = decimal.NewFromInt(100000)
	memstore.SeedWallet(s, *w)
	ctx := context.Background()

	const workers = 8
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(200), "", ClientMeta{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var completed, rejected int
	for err := range results {
		switch {
		case err == nil:
			completed++
		case errors.Is(err, ErrInsufficientBalance):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if completed != 5 || rejected != 3 {
		t.Fatalf("expected 5 completed and 3 rejected, got %d and %d", completed, rejected)
	}
	mustBalance(t, s, "alice", 0)

	entries := walletEntries(t, s, w.ID)
	if len(entries) != workers {
		t.Fatalf("every attempt must leave a row, got %d of %d", len(entries), workers)
	}
}

func TestConcurrentTransfers_OppositeDirectionsNoDeadlock(t *testing.T) {
	s := memstore.New(10 * time.Second)
	eng := testEngine(s)
	seedAccount(s, "alice", 5000)
	seedAccount(s, "bob", 5000)
	ctx := context.Background()

	const rounds = 4
	errs := make(chan error, rounds*2)
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := eng.Transfer(ctx, "alice", "bob", decimal.NewFromInt(100), "", ClientMeta{})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := eng.Transfer(ctx, "bob", "alice", decimal.NewFromInt(100), "", ClientMeta{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("transfer failed: %v", err)
		}
	}

	// Equal flows in both directions leave both balances where they started,
	// and nothing was minted or destroyed along the way.
	mustBalance(t, s, "alice", 5000)
	mustBalance(t, s, "bob", 5000)
}

func TestHistory_NewestFirst(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)
	seedAccount(s, "alice", 0)
	ctx := context.Background()

	day := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := day.Add(time.Duration(i) * time.Hour)
		eng.now = func() time.Time { return at }
		if _, err := eng.Deposit(ctx, "alice", decimal.NewFromInt(int64(100+i)), "", ClientMeta{}); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}

	entries, err := eng.History(ctx, "alice", 2, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(entries))
	}
	if !entries[0].Amount.Equal(decimal.NewFromInt(102)) || !entries[1].Amount.Equal(decimal.NewFromInt(101)) {
		t.Fatalf("expected newest first, got %s then %s", entries[0].Amount, entries[1].Amount)
	}
}

func TestGetWallet_ShowsRemainingAllowance(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)
	seedAccount(s, "alice", 40000)
	ctx := context.Background()

	if _, err := eng.Withdraw(ctx, "alice", decimal.NewFromInt(2500), "", ClientMeta{}); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	view, err := eng.GetWallet(ctx, "alice")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if !view.RemainingToday.Equal(decimal.NewFromInt(7500)) {
		t.Fatalf("expected 7500 remaining, got %s", view.RemainingToday)
	}
	if !view.Balance.Equal(decimal.NewFromInt(37500)) {
		t.Fatalf("expected balance 37500, got %s", view.Balance)
	}
}

func TestWithdraw_UnknownUser(t *testing.T) {
	s := memstore.New(time.Second)
	eng := testEngine(s)

	_, err := eng.Withdraw(context.Background(), "ghost", decimal.NewFromInt(10), "", ClientMeta{})
	if !errors.Is(err, wallet.ErrNotFound) {
		t.Fatalf("expected wallet.ErrNotFound, got %v", err)
	}
}
