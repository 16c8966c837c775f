package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kivu-pay/kivu_pay/internal/identity"
	"github.com/kivu-pay/kivu_pay/internal/ledger"
	"github.com/kivu-pay/kivu_pay/internal/store"
	"github.com/kivu-pay/kivu_pay/internal/wallet"
)

// Store is a single-process stand-in for PostgreSQL, used in dev mode and
// tests. One instance holds every table so atomic units and wallet locks span
// wallets, users and ledger entries the same way the database does. The typed
// facades (Wallets, Ledger, Users) expose the per-package store contracts
// over the shared state.
type Store struct {
	mu      sync.Mutex
	wallets map[string]wallet.Wallet
	users   map[string]identity.User
	phones  map[string]string
	entries []ledger.Entry

	lockMu   sync.Mutex
	locks    map[string]chan struct{}
	lockWait time.Duration
}

// New builds an empty store. lockWait bounds how long GetForUpdate blocks on
// a wallet already locked by another unit; zero means wait until the context
// is done.
func New(lockWait time.Duration) *Store {
	return &Store{
		wallets:  make(map[string]wallet.Wallet),
		users:    make(map[string]identity.User),
		phones:   make(map[string]string),
		locks:    make(map[string]chan struct{}),
		lockWait: lockWait,
	}
}

// Wallets returns the wallet store view over this backend.
func (s *Store) Wallets() *WalletStore { return &WalletStore{s: s} }

// Ledger returns the ledger store view over this backend.
func (s *Store) Ledger() *LedgerStore { return &LedgerStore{s: s} }

// Users returns the identity repository view over this backend.
func (s *Store) Users() *UserStore { return &UserStore{s: s} }

// Tx stages writes for one atomic unit. Nothing it holds is visible to other
// readers until commit; wallet locks taken through it are held until the unit
// ends either way.
type Tx struct {
	s       *Store
	wallets map[string]*wallet.Wallet
	saved   map[string]bool
	created []wallet.Wallet
	users   []identity.User
	entries []ledger.Entry
	locked  []string
}

// Within runs fn inside one atomic unit. Staged writes apply only when fn
// returns nil; every wallet lock the unit took is released afterwards.
func (s *Store) Within(ctx context.Context, fn func(tx store.Tx) error) error {
	t := &Tx{
		s:       s,
		wallets: make(map[string]*wallet.Wallet),
		saved:   make(map[string]bool),
	}
	defer t.release()
	if err := fn(t); err != nil {
		return err
	}
	return t.commit()
}

func (t *Tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range t.users {
		if _, taken := s.phones[u.Phone]; taken {
			return identity.ErrPhoneTaken
		}
	}
	for _, w := range t.created {
		if _, exists := s.wallets[w.UserID]; exists {
			return errors.New("wallet already exists for user")
		}
	}
	for _, u := range t.users {
		s.users[u.ID] = u
		s.phones[u.Phone] = u.ID
	}
	for _, w := range t.created {
		s.wallets[w.UserID] = w
	}
	for userID, w := range t.wallets {
		if t.saved[userID] {
			s.wallets[userID] = *w
		}
	}
	s.entries = append(s.entries, t.entries...)
	return nil
}

func (t *Tx) release() {
	for i := len(t.locked) - 1; i >= 0; i-- {
		t.s.unlock(t.locked[i])
	}
	t.locked = nil
}

func (s *Store) lockChan(userID string) chan struct{} {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	ch, ok := s.locks[userID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[userID] = ch
	}
	return ch
}

func (s *Store) lock(ctx context.Context, userID string) error {
	ch := s.lockChan(userID)
	if s.lockWait <= 0 {
		select {
		case ch <- struct{}{}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	timer := time.NewTimer(s.lockWait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return store.ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) unlock(userID string) {
	<-s.lockChan(userID)
}

// WalletStore implements wallet.Store over the shared state.
type WalletStore struct {
	s *Store
}

// Create stages a wallet insert in the given atomic unit.
func (ws *WalletStore) Create(_ context.Context, txh store.Tx, w *wallet.Wallet) error {
	t, err := memTx(txh)
	if err != nil {
		return err
	}
	ws.s.mu.Lock()
	_, exists := ws.s.wallets[w.UserID]
	ws.s.mu.Unlock()
	if exists {
		return errors.New("wallet already exists for user")
	}
	t.created = append(t.created, *w)
	return nil
}

// Get returns the committed wallet for a user without locking it.
func (ws *WalletStore) Get(_ context.Context, userID string) (*wallet.Wallet, error) {
	ws.s.mu.Lock()
	defer ws.s.mu.Unlock()
	w, ok := ws.s.wallets[userID]
	if !ok {
		return nil, wallet.ErrNotFound
	}
	out := w
	return &out, nil
}

// GetForUpdate takes the wallet's exclusive lock for the unit, then returns a
// private copy of the committed state. Re-requesting a wallet the unit
// already holds returns the same staged copy.
func (ws *WalletStore) GetForUpdate(ctx context.Context, txh store.Tx, userID string) (*wallet.Wallet, error) {
	t, err := memTx(txh)
	if err != nil {
		return nil, err
	}
	if w, ok := t.wallets[userID]; ok {
		return w, nil
	}
	if err := ws.s.lock(ctx, userID); err != nil {
		return nil, err
	}
	ws.s.mu.Lock()
	w, ok := ws.s.wallets[userID]
	ws.s.mu.Unlock()
	if !ok {
		ws.s.unlock(userID)
		return nil, wallet.ErrNotFound
	}
	t.locked = append(t.locked, userID)
	staged := w
	t.wallets[userID] = &staged
	return &staged, nil
}

// Save stages the wallet's mutable fields for commit and bumps UpdatedAt.
func (ws *WalletStore) Save(_ context.Context, txh store.Tx, w *wallet.Wallet) error {
	t, err := memTx(txh)
	if err != nil {
		return err
	}
	w.UpdatedAt = time.Now().UTC()
	staged := *w
	t.wallets[w.UserID] = &staged
	t.saved[w.UserID] = true
	return nil
}

// LedgerStore implements ledger.Store over the shared state.
type LedgerStore struct {
	s *Store
}

// Append stages one entry in the given atomic unit.
func (ls *LedgerStore) Append(_ context.Context, txh store.Tx, e *ledger.Entry) error {
	t, err := memTx(txh)
	if err != nil {
		return err
	}
	t.entries = append(t.entries, *e)
	return nil
}

// CountSince counts the wallet's entries at or after since, staged ones
// included so a unit reads its own writes.
func (ls *LedgerStore) CountSince(_ context.Context, txh store.Tx, walletID string, since time.Time) (int, error) {
	t, err := memTx(txh)
	if err != nil {
		return 0, err
	}
	count := 0
	ls.s.mu.Lock()
	for i := range ls.s.entries {
		if matchSince(&ls.s.entries[i], walletID, since) {
			count++
		}
	}
	ls.s.mu.Unlock()
	for i := range t.entries {
		if matchSince(&t.entries[i], walletID, since) {
			count++
		}
	}
	return count, nil
}

// SumCompletedDeposits totals completed deposits at or after since, staged
// ones included.
func (ls *LedgerStore) SumCompletedDeposits(_ context.Context, txh store.Tx, walletID string, since time.Time) (decimal.Decimal, error) {
	t, err := memTx(txh)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	add := func(e *ledger.Entry) {
		if matchSince(e, walletID, since) && e.Kind == ledger.KindDeposit && e.Status == ledger.StatusCompleted {
			sum = sum.Add(e.Amount)
		}
	}
	ls.s.mu.Lock()
	for i := range ls.s.entries {
		add(&ls.s.entries[i])
	}
	ls.s.mu.Unlock()
	for i := range t.entries {
		add(&t.entries[i])
	}
	return sum, nil
}

// ListByWallet returns committed entries for the wallet, newest first.
func (ls *LedgerStore) ListByWallet(_ context.Context, walletID string, limit, offset int) ([]ledger.Entry, error) {
	ls.s.mu.Lock()
	var out []ledger.Entry
	for _, e := range ls.s.entries {
		if e.WalletID == walletID {
			out = append(out, e)
		}
	}
	ls.s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// FindByReference returns committed entries under a reference number.
func (ls *LedgerStore) FindByReference(_ context.Context, reference string) ([]ledger.Entry, error) {
	ls.s.mu.Lock()
	defer ls.s.mu.Unlock()
	var out []ledger.Entry
	for _, e := range ls.s.entries {
		if e.ReferenceNumber == reference {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, ledger.ErrNotFound
	}
	return out, nil
}

func matchSince(e *ledger.Entry, walletID string, since time.Time) bool {
	return e.WalletID == walletID && !e.CreatedAt.Before(since)
}

// UserStore implements identity.Repository over the shared state.
type UserStore struct {
	s *Store
}

// Create stages a user insert in the given atomic unit.
func (us *UserStore) Create(_ context.Context, txh store.Tx, user identity.User) error {
	t, err := memTx(txh)
	if err != nil {
		return err
	}
	us.s.mu.Lock()
	_, taken := us.s.phones[user.Phone]
	us.s.mu.Unlock()
	if taken {
		return identity.ErrPhoneTaken
	}
	t.users = append(t.users, user)
	return nil
}

// FindByPhone fetches a committed user by phone number.
func (us *UserStore) FindByPhone(_ context.Context, phone string) (identity.User, error) {
	us.s.mu.Lock()
	defer us.s.mu.Unlock()
	id, ok := us.s.phones[phone]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return us.s.users[id], nil
}

// FindByID fetches a committed user by identifier.
func (us *UserStore) FindByID(_ context.Context, id string) (identity.User, error) {
	us.s.mu.Lock()
	defer us.s.mu.Unlock()
	u, ok := us.s.users[id]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

// UpdateDevice stores the user's bound device identifier.
func (us *UserStore) UpdateDevice(_ context.Context, id, deviceID string) error {
	return us.s.updateUser(id, func(u *identity.User) { u.DeviceID = deviceID })
}

// UpdateTokenVersion bumps the user's token generation.
func (us *UserStore) UpdateTokenVersion(_ context.Context, id string, version int) error {
	return us.s.updateUser(id, func(u *identity.User) { u.TokenVersion = version })
}

// SetKYCStatus moves the user to the given verification status.
func (us *UserStore) SetKYCStatus(_ context.Context, id string, status identity.KYCStatus) error {
	return us.s.updateUser(id, func(u *identity.User) { u.KYCStatus = status })
}

// KYCStatus reads the user's verification status, staged creates included.
func (us *UserStore) KYCStatus(_ context.Context, txh store.Tx, id string) (identity.KYCStatus, error) {
	t, err := memTx(txh)
	if err != nil {
		return "", err
	}
	for _, u := range t.users {
		if u.ID == id {
			return u.KYCStatus, nil
		}
	}
	us.s.mu.Lock()
	defer us.s.mu.Unlock()
	u, ok := us.s.users[id]
	if !ok {
		return "", identity.ErrNotFound
	}
	return u.KYCStatus, nil
}

func (s *Store) updateUser(id string, apply func(*identity.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return identity.ErrNotFound
	}
	apply(&u)
	s.users[id] = u
	return nil
}

func memTx(txh store.Tx) (*Tx, error) {
	t, ok := txh.(*Tx)
	if !ok {
		return nil, fmt.Errorf("memstore: %T is not a memstore transaction handle", txh)
	}
	return t, nil
}
