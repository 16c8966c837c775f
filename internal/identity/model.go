package identity

import "time"

// KYCStatus tracks how far a user got through identity verification.
type KYCStatus string

const (
    KYCNotStarted KYCStatus = "not_started"
    KYCPending    KYCStatus = "pending"
    KYCVerified   KYCStatus = "verified"
)

// Roles assignable to a user.
const (
    RoleUser  = "user"
    RoleAdmin = "admin"
)

// User represents a registered wallet owner.
type User struct {
    ID           string
    Phone        string
    Role         string
    KYCStatus    KYCStatus
    PINHash      []byte
    DeviceID     string
    TokenVersion int
    CreatedAt    time.Time
}

// Credentials request structure.
type Credentials struct {
    Phone    string
    PIN      string
    DeviceID string
}
