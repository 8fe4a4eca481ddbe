package handle

import (
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors for illegal handle and transaction usage.
// These can be used with errors.Is() for programmatic error checking.
var (
	// ErrAlreadyInTransaction is returned when Begin is called while a
	// transaction is already open on the handle.
	ErrAlreadyInTransaction = errors.New("a transaction is already in progress on this handle")

	// ErrNotInTransaction is returned when Commit or Rollback is called
	// outside a transaction.
	ErrNotInTransaction = errors.New("no transaction is in progress on this handle")

	// ErrNoStableConnection is returned when Begin is called on an
	// auto-closing handle. Such a handle releases its connection when the
	// current call returns, so the transaction could never be committed.
	ErrNoStableConnection = errors.New("begin requires a connection that outlives the call; this handle releases its connection when the current call returns")

	// ErrHandleClosed is returned for any operation on a closed handle.
	ErrHandleClosed = errors.New("handle is closed")

	// ErrSupplierClosed is returned when acquiring from a closed supplier.
	ErrSupplierClosed = errors.New("handle supplier is closed")

	// ErrUnsupportedIsolation is returned when an isolation level has no
	// SQL rendering for the backend.
	ErrUnsupportedIsolation = errors.New("unsupported isolation level")
)

// TransactionError reports a transaction-management mistake: an operation
// that is illegal in the handle's current state, or a Begin/Commit/Rollback
// refused by the backend. The underlying cause is available via Unwrap.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("handle: %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// IsolationError reports a rejected isolation-level request. The driver's
// original failure is preserved untouched as the cause, so callers can
// distinguish a management logic error from a backend refusal.
type IsolationError struct {
	Level sql.IsolationLevel
	Err   error
}

func (e *IsolationError) Error() string {
	return fmt.Sprintf("handle: unable to manipulate transaction isolation level (%s): %v", e.Level, e.Err)
}

func (e *IsolationError) Unwrap() error {
	return e.Err
}
