package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// lockNotAvailable is the SQLSTATE Postgres raises when lock_timeout expires.
const lockNotAvailable = "55P03"

// Postgres runs atomic units as database transactions. Row locks taken via
// SELECT ... FOR UPDATE inside the unit are held until commit or rollback.
type Postgres struct {
	db       *pgxpool.Pool
	lockWait time.Duration
}

// NewPostgres builds the Postgres-backed atomic unit runner. lockWait bounds
// FOR UPDATE waits inside each unit; zero disables the bound.
func NewPostgres(db *pgxpool.Pool, lockWait time.Duration) *Postgres {
	return &Postgres{db: db, lockWait: lockWait}
}

// Within begins a transaction, passes it to fn as the unit handle, and
// commits when fn returns nil. Lock waits exceeding the configured bound
// surface as ErrLockTimeout.
func (p *Postgres) Within(ctx context.Context, fn func(tx Tx) error) error {
	pgtx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer pgtx.Rollback(ctx) // nolint:errcheck

	if p.lockWait > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", p.lockWait.Milliseconds())
		if _, err := pgtx.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	if err := fn(pgtx); err != nil {
		return mapLockErr(err)
	}

	return mapLockErr(pgtx.Commit(ctx))
}

func mapLockErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
		return ErrLockTimeout
	}
	return err
}
