package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kivu-pay/kivu_pay/internal/store"
)

const walletColumns = `id, user_id, currency, balance::text, daily_withdrawal_limit::text,
        withdrawn_today::text, last_withdrawal_reset, frozen, frozen_reason, created_at, updated_at`

// PostgresStore stores wallets in PostgreSQL. Numeric columns travel as text
// so amounts round-trip exactly.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a wallet store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a wallet record inside the given atomic unit.
func (s *PostgresStore) Create(ctx context.Context, txh store.Tx, w *Wallet) error {
	tx, err := pgxTx(txh)
	if err != nil {
		return err
	}
	walletID, err := uuid.Parse(w.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(w.UserID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO wallets (id, user_id, currency, balance, daily_withdrawal_limit,
        withdrawn_today, last_withdrawal_reset, frozen, frozen_reason, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		walletID, userID, w.Currency, w.Balance.String(), w.DailyWithdrawalLimit.String(),
		w.WithdrawnToday.String(), w.LastWithdrawalReset, w.Frozen, w.FrozenReason,
		w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	return err
}

// Get fetches the wallet for a user without locking it.
func (s *PostgresStore) Get(ctx context.Context, userID string) (*Wallet, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, uid)
	return scanWallet(row)
}

// GetForUpdate loads the user's wallet under its exclusive row lock.
func (s *PostgresStore) GetForUpdate(ctx context.Context, txh store.Tx, userID string) (*Wallet, error) {
	tx, err := pgxTx(txh)
	if err != nil {
		return nil, err
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrNotFound
	}
	row := tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, uid)
	return scanWallet(row)
}

// Save persists all mutable wallet fields and bumps UpdatedAt.
func (s *PostgresStore) Save(ctx context.Context, txh store.Tx, w *Wallet) error {
	tx, err := pgxTx(txh)
	if err != nil {
		return err
	}
	walletID, err := uuid.Parse(w.ID)
	if err != nil {
		return err
	}
	w.UpdatedAt = time.Now().UTC()
	cmd, err := tx.Exec(ctx, `UPDATE wallets SET balance = $1, daily_withdrawal_limit = $2,
        withdrawn_today = $3, last_withdrawal_reset = $4, frozen = $5, frozen_reason = $6, updated_at = $7
        WHERE id = $8`,
		w.Balance.String(), w.DailyWithdrawalLimit.String(), w.WithdrawnToday.String(),
		w.LastWithdrawalReset, w.Frozen, w.FrozenReason, w.UpdatedAt, walletID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanWallet(row pgx.Row) (*Wallet, error) {
	var (
		w         Wallet
		id        uuid.UUID
		userID    uuid.UUID
		balance   string
		limit     string
		withdrawn string
		lastReset *time.Time
	)
	if err := row.Scan(&id, &userID, &w.Currency, &balance, &limit, &withdrawn,
		&lastReset, &w.Frozen, &w.FrozenReason, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	w.ID = id.String()
	w.UserID = userID.String()
	var err error
	if w.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	if w.DailyWithdrawalLimit, err = decimal.NewFromString(limit); err != nil {
		return nil, fmt.Errorf("parse daily limit: %w", err)
	}
	if w.WithdrawnToday, err = decimal.NewFromString(withdrawn); err != nil {
		return nil, fmt.Errorf("parse withdrawn today: %w", err)
	}
	w.LastWithdrawalReset = lastReset
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return &w, nil
}

func pgxTx(txh store.Tx) (pgx.Tx, error) {
	tx, ok := txh.(pgx.Tx)
	if !ok {
		return nil, fmt.Errorf("wallet: %T is not a postgres transaction handle", txh)
	}
	return tx, nil
}
