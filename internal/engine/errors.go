package engine

import "errors"

var (
	// ErrInvalidAmount occurs when an operation carries a zero or negative
	// amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrSelfTransfer occurs when the sender and receiver are the same user.
	ErrSelfTransfer = errors.New("cannot transfer to your own wallet")

	// ErrWalletFrozen occurs when an operation touches a frozen wallet. The
	// freeze reason, when present, is appended to the error text.
	ErrWalletFrozen = errors.New("wallet is frozen")

	// ErrInsufficientBalance occurs when an outflow exceeds the wallet's
	// balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrLimitExceeded occurs when an outflow would push today's withdrawals
	// past the wallet's daily limit.
	ErrLimitExceeded = errors.New("daily withdrawal limit exceeded")

	// ErrKYCRequired occurs when an outflow above the KYC threshold is
	// attempted by a user whose identity is not verified.
	ErrKYCRequired = errors.New("KYC verification required")

	// ErrFraudDetected occurs when the fraud evaluator blocks an operation.
	// The block reason is appended to the error text.
	ErrFraudDetected = errors.New("transaction blocked by fraud checks")
)

// isRejection separates business rejections, which commit their audit rows,
// from infrastructure failures, which roll the whole unit back.
func isRejection(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount,
		ErrSelfTransfer,
		ErrWalletFrozen,
		ErrInsufficientBalance,
		ErrLimitExceeded,
		ErrKYCRequired,
		ErrFraudDetected,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
