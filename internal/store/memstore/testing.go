package memstore

import (
    "github.com/kivu-pay/kivu_pay/internal/identity"
    "github.com/kivu-pay/kivu_pay/internal/ledger"
    "github.com/kivu-pay/kivu_pay/internal/wallet"
)

// SeedWallet is a test helper that inserts a wallet directly, bypassing the
// atomic path.
func SeedWallet(s *Store, w wallet.Wallet) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.wallets[w.UserID] = w
}

// SeedUser is a test helper that inserts a user directly.
func SeedUser(s *Store, u identity.User) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.users[u.ID] = u
    s.phones[u.Phone] = u.ID
}

// SeedEntry is a test helper that appends a ledger entry directly.
func SeedEntry(s *Store, e ledger.Entry) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.entries = append(s.entries, e)
}
