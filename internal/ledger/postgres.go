package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kivu-pay/kivu_pay/internal/store"
)

const entryColumns = `id, wallet_id, kind, amount::text, balance_before::text, balance_after::text,
        status, reference_number, counterparty_wallet_id, flagged_for_fraud, fraud_reason,
        failure_reason, description, ip_address, user_agent, created_at, completed_at`

// PostgresStore persists ledger entries in PostgreSQL. Amounts travel as text
// so they round-trip exactly.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a ledger store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append writes one terminal entry inside the given atomic unit.
func (s *PostgresStore) Append(ctx context.Context, txh store.Tx, e *Entry) error {
	tx, err := pgxTx(txh)
	if err != nil {
		return err
	}
	entryID, err := uuid.Parse(e.ID)
	if err != nil {
		return err
	}
	walletID, err := uuid.Parse(e.WalletID)
	if err != nil {
		return err
	}
	var counterparty *uuid.UUID
	if e.CounterpartyWalletID != "" {
		id, err := uuid.Parse(e.CounterpartyWalletID)
		if err != nil {
			return err
		}
		counterparty = &id
	}
	_, err = tx.Exec(ctx, `INSERT INTO ledger_entries (id, wallet_id, kind, amount, balance_before,
        balance_after, status, reference_number, counterparty_wallet_id, flagged_for_fraud,
        fraud_reason, failure_reason, description, ip_address, user_agent, created_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		entryID, walletID, string(e.Kind), e.Amount.String(), e.BalanceBefore.String(),
		e.BalanceAfter.String(), string(e.Status), e.ReferenceNumber, counterparty,
		e.FlaggedForFraud, e.FraudReason, e.FailureReason, e.Description, e.IPAddress,
		e.UserAgent, e.CreatedAt, e.CompletedAt)
	return err
}

// CountSince counts the wallet's entries created at or after since, any status.
func (s *PostgresStore) CountSince(ctx context.Context, txh store.Tx, walletID string, since time.Time) (int, error) {
	tx, err := pgxTx(txh)
	if err != nil {
		return 0, err
	}
	wid, err := uuid.Parse(walletID)
	if err != nil {
		return 0, err
	}
	var count int
	err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries
        WHERE wallet_id = $1 AND created_at >= $2`, wid, since).Scan(&count)
	return count, err
}

// SumCompletedDeposits totals completed deposits created at or after since.
func (s *PostgresStore) SumCompletedDeposits(ctx context.Context, txh store.Tx, walletID string, since time.Time) (decimal.Decimal, error) {
	tx, err := pgxTx(txh)
	if err != nil {
		return decimal.Zero, err
	}
	wid, err := uuid.Parse(walletID)
	if err != nil {
		return decimal.Zero, err
	}
	var sum string
	err = tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::text FROM ledger_entries
        WHERE wallet_id = $1 AND kind = $2 AND status = $3 AND created_at >= $4`,
		wid, string(KindDeposit), string(StatusCompleted), since).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(sum)
}

// ListByWallet returns the wallet's entries newest first.
func (s *PostgresStore) ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]Entry, error) {
	wid, err := uuid.Parse(walletID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
        WHERE wallet_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, wid, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// FindByReference returns every leg recorded under a reference number.
func (s *PostgresStore) FindByReference(ctx context.Context, reference string) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
        WHERE reference_number = $1 ORDER BY created_at, kind`, reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries, nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e            Entry
		id           uuid.UUID
		walletID     uuid.UUID
		kind         string
		amount       string
		before       string
		after        string
		status       string
		counterparty *uuid.UUID
	)
	if err := row.Scan(&id, &walletID, &kind, &amount, &before, &after, &status,
		&e.ReferenceNumber, &counterparty, &e.FlaggedForFraud, &e.FraudReason,
		&e.FailureReason, &e.Description, &e.IPAddress, &e.UserAgent,
		&e.CreatedAt, &e.CompletedAt); err != nil {
		return nil, err
	}
	e.ID = id.String()
	e.WalletID = walletID.String()
	e.Kind = Kind(kind)
	e.Status = Status(status)
	if counterparty != nil {
		e.CounterpartyWalletID = counterparty.String()
	}
	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if e.BalanceBefore, err = decimal.NewFromString(before); err != nil {
		return nil, fmt.Errorf("parse balance before: %w", err)
	}
	if e.BalanceAfter, err = decimal.NewFromString(after); err != nil {
		return nil, fmt.Errorf("parse balance after: %w", err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	if e.CompletedAt != nil {
		done := e.CompletedAt.UTC()
		e.CompletedAt = &done
	}
	return &e, nil
}

func pgxTx(txh store.Tx) (pgx.Tx, error) {
	tx, ok := txh.(pgx.Tx)
	if !ok {
		return nil, fmt.Errorf("ledger: %T is not a postgres transaction handle", txh)
	}
	return tx, nil
}
