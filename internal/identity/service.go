package identity

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/google/uuid"
    "github.com/shopspring/decimal"
    "golang.org/x/crypto/bcrypt"

    "github.com/kivu-pay/kivu_pay/internal/store"
    "github.com/kivu-pay/kivu_pay/internal/wallet"
)

var (
    // ErrInvalidCredentials covers unknown phones and wrong PINs alike so
    // responses do not reveal which one it was.
    ErrInvalidCredentials = errors.New("invalid phone or PIN")

    // ErrDeviceRequired occurs when a user with no bound device logs in
    // without presenting one.
    ErrDeviceRequired = errors.New("device binding required")

    // ErrDeviceMismatch occurs when the presented device differs from the
    // bound one.
    ErrDeviceMismatch = errors.New("device mismatch")
)

// Config carries the defaults stamped on newly created wallets.
type Config struct {
    Currency             string
    DailyWithdrawalLimit decimal.Decimal
}

// Service manages identity lifecycle.
type Service struct {
    repo    Repository
    wallets wallet.Store
    atomic  store.Atomic
    cfg     Config
}

// NewService creates a new identity service.
func NewService(repo Repository, wallets wallet.Store, atomic store.Atomic, cfg Config) *Service {
    return &Service{repo: repo, wallets: wallets, atomic: atomic, cfg: cfg}
}

// Register creates a user and their zero-balance wallet in one atomic unit.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
    if creds.Phone == "" {
        return User{}, errors.New("phone is required")
    }
    if len(creds.PIN) < 4 {
        return User{}, errors.New("PIN must be at least 4 digits")
    }

    hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), bcrypt.DefaultCost)
    if err != nil {
        return User{}, err
    }

    now := time.Now().UTC()
    user := User{
        ID:        uuid.New().String(),
        Phone:     creds.Phone,
        Role:      RoleUser,
        KYCStatus: KYCNotStarted,
        PINHash:   hash,
        DeviceID:  creds.DeviceID,
        CreatedAt: now,
    }
    w := &wallet.Wallet{
        ID:                   uuid.New().String(),
        UserID:               user.ID,
        Currency:             s.cfg.Currency,
        Balance:              decimal.Zero,
        DailyWithdrawalLimit: s.cfg.DailyWithdrawalLimit,
        WithdrawnToday:       decimal.Zero,
        CreatedAt:            now,
        UpdatedAt:            now,
    }

    err = s.atomic.Within(ctx, func(tx store.Tx) error {
        if err := s.repo.Create(ctx, tx, user); err != nil {
            return err
        }
        return s.wallets.Create(ctx, tx, w)
    })
    if err != nil {
        return User{}, err
    }

    return user, nil
}

// Authenticate verifies credentials and device binding.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
    user, err := s.repo.FindByPhone(ctx, creds.Phone)
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return User{}, ErrInvalidCredentials
        }
        return User{}, err
    }

    if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(creds.PIN)); err != nil {
        return User{}, ErrInvalidCredentials
    }

    if user.DeviceID == "" {
        if creds.DeviceID == "" {
            return User{}, ErrDeviceRequired
        }
        if err := s.repo.UpdateDevice(ctx, user.ID, creds.DeviceID); err != nil {
            return User{}, err
        }
        user.DeviceID = creds.DeviceID
    } else if creds.DeviceID != "" && user.DeviceID != creds.DeviceID {
        return User{}, ErrDeviceMismatch
    }

    return user, nil
}

// Get returns the user by identifier.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
    return s.repo.FindByID(ctx, id)
}

// SubmitKYC queues the user for verification.
func (s *Service) SubmitKYC(ctx context.Context, userID string) error {
    user, err := s.repo.FindByID(ctx, userID)
    if err != nil {
        return err
    }
    if user.KYCStatus == KYCVerified {
        return errors.New("KYC already verified")
    }
    return s.repo.SetKYCStatus(ctx, userID, KYCPending)
}

// SetKYC lands a user on the given verification status. Admin operation.
func (s *Service) SetKYC(ctx context.Context, userID string, status KYCStatus) error {
    switch status {
    case KYCNotStarted, KYCPending, KYCVerified:
    default:
        return fmt.Errorf("unknown KYC status %q", status)
    }
    return s.repo.SetKYCStatus(ctx, userID, status)
}
