package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kivu-pay/kivu_pay/internal/store"
)

var (
	// ErrNotFound occurs when no user matches the lookup.
	ErrNotFound = errors.New("user not found")

	// ErrPhoneTaken occurs when registering a phone number that already has
	// an account.
	ErrPhoneTaken = errors.New("phone number already registered")
)

// uniqueViolation is the SQLSTATE raised by duplicate key inserts.
const uniqueViolation = "23505"

// Repository persists users. Create runs inside an atomic unit so the user
// and their wallet land together; the single-field updates run standalone.
type Repository interface {
	Create(ctx context.Context, tx store.Tx, user User) error
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	UpdateDevice(ctx context.Context, id, deviceID string) error
	UpdateTokenVersion(ctx context.Context, id string, version int) error
	SetKYCStatus(ctx context.Context, id string, status KYCStatus) error
	KYCStatus(ctx context.Context, tx store.Tx, id string) (KYCStatus, error)
}

const userColumns = `id, phone, role, kyc_status, pin_hash, device_id, token_version, created_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user inside the given atomic unit.
func (r *PostgresRepository) Create(ctx context.Context, txh store.Tx, user User) error {
	tx, err := pgxTx(txh)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO users (id, phone, role, kyc_status, pin_hash, device_id, token_version, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		userID, user.Phone, user.Role, string(user.KYCStatus), user.PINHash, user.DeviceID,
		user.TokenVersion, user.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrPhoneTaken
	}
	return err
}

// FindByPhone fetches a user by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
	return scanUser(row)
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

// UpdateDevice stores the users bound device identifier.
func (r *PostgresRepository) UpdateDevice(ctx context.Context, id, deviceID string) error {
	return r.updateField(ctx, id, `UPDATE users SET device_id = $1 WHERE id = $2`, deviceID)
}

// UpdateTokenVersion bumps the user's token generation, revoking outstanding
// refresh tokens.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, id string, version int) error {
	return r.updateField(ctx, id, `UPDATE users SET token_version = $1 WHERE id = $2`, version)
}

// SetKYCStatus moves the user to the given verification status.
func (r *PostgresRepository) SetKYCStatus(ctx context.Context, id string, status KYCStatus) error {
	return r.updateField(ctx, id, `UPDATE users SET kyc_status = $1 WHERE id = $2`, string(status))
}

// KYCStatus reads the user's verification status inside the given atomic unit.
func (r *PostgresRepository) KYCStatus(ctx context.Context, txh store.Tx, id string) (KYCStatus, error) {
	tx, err := pgxTx(txh)
	if err != nil {
		return "", err
	}
	userID, err := uuid.Parse(id)
	if err != nil {
		return "", ErrNotFound
	}
	var status string
	if err := tx.QueryRow(ctx, `SELECT kyc_status FROM users WHERE id = $1`, userID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return KYCStatus(status), nil
}

func (r *PostgresRepository) updateField(ctx context.Context, id, query string, value any) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, query, value, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id        uuid.UUID
		status    string
		createdAt time.Time
		user      User
	)
	if err := row.Scan(&id, &user.Phone, &user.Role, &status, &user.PINHash,
		&user.DeviceID, &user.TokenVersion, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.ID = id.String()
	user.KYCStatus = KYCStatus(status)
	user.CreatedAt = createdAt.UTC()
	return user, nil
}

func pgxTx(txh store.Tx) (pgx.Tx, error) {
	tx, ok := txh.(pgx.Tx)
	if !ok {
		return nil, fmt.Errorf("identity: %T is not a postgres transaction handle", txh)
	}
	return tx, nil
}
