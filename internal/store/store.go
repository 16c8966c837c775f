package store

import (
	"context"
	"errors"
)

// ErrLockTimeout occurs when a wallet row lock cannot be acquired within the
// configured wait. It is an infrastructure condition, not a business
// rejection: callers should retry with backoff.
var ErrLockTimeout = errors.New("lock wait timeout")

// Tx is an opaque handle to one in-flight atomic unit. Store implementations
// assert it back to their own transaction type; handing a Tx from one backend
// to another is a programming error surfaced at runtime.
type Tx any

// Atomic runs a function inside a single atomic unit. Either every read,
// check and write performed through the handle becomes visible together, or
// none does. Implementations must hold any row locks taken through the handle
// until the unit ends.
//
// A non-nil error from fn aborts the unit. Business rejections that must
// still persist their ledger trail are therefore reported out of band by the
// caller while fn returns nil.
type Atomic interface {
	Within(ctx context.Context, fn func(tx Tx) error) error
}
