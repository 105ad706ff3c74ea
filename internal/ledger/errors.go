package ledger

import "errors"

var (
	// ErrInvalidAmount means the caller supplied a zero or non-positive
	// magnitude where one is required. Detected before any store call.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientBalance means a redemption or downward adjustment
	// would drive the balance negative. This is an expected business
	// outcome, not a system fault.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAccountUnknown is returned by read paths that skip lazy creation.
	ErrAccountUnknown = errors.New("account unknown")

	// ErrConflict is a transient write conflict reported by the store.
	// The engine retries these internally.
	ErrConflict = errors.New("write conflict")

	// ErrBusy is surfaced after conflict retries are exhausted. Callers may
	// retry.
	ErrBusy = errors.New("ledger busy")

	// ErrStoreUnavailable wraps durable persistence failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)
