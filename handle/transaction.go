package handle

import (
	"context"
	"database/sql"
)

// txState tracks the transaction lifecycle of a handle. The machine cycles
// outside -> active -> (committed|rolledBack) -> outside; the terminal
// states are retained until the next Begin for diagnostics.
type txState int

const (
	txOutside txState = iota
	txActive
	txCommitted
	txRolledBack
)

func (s txState) String() string {
	switch s {
	case txActive:
		return "active"
	case txCommitted:
		return "committed"
	case txRolledBack:
		return "rolled back"
	default:
		return "outside"
	}
}

// InTransaction reports whether a transaction is currently open.
func (h *Handle) InTransaction() bool {
	return h.tx != nil
}

// Isolation returns the isolation level the next Begin will use.
func (h *Handle) Isolation() sql.IsolationLevel {
	return h.isolation
}

// Begin opens a transaction at the handle's current isolation level.
//
// Begin fails with a TransactionError on an auto-closing handle: its
// connection is released when the current call returns, so the transaction
// would begin and the connection would just close underneath it.
func (h *Handle) Begin(ctx context.Context) error {
	return h.BeginIsolated(ctx, h.isolation)
}

// BeginIsolated opens a transaction at the given isolation level.
func (h *Handle) BeginIsolated(ctx context.Context, level sql.IsolationLevel) error {
	if h.closed {
		return &TransactionError{Op: "begin", Err: ErrHandleClosed}
	}
	if h.autoClosing {
		return &TransactionError{Op: "begin", Err: ErrNoStableConnection}
	}
	return h.begin(ctx, level)
}

// begin opens the transaction without the stability check. Call-scoped
// transactions (Transact) are legal on auto-closing handles because they
// commit or roll back before the call returns.
func (h *Handle) begin(ctx context.Context, level sql.IsolationLevel) error {
	if h.tx != nil {
		return &TransactionError{Op: "begin", Err: ErrAlreadyInTransaction}
	}

	tx, err := h.db.BeginTxx(ctx, &sql.TxOptions{Isolation: level})
	if err != nil {
		return &TransactionError{Op: "begin", Err: err}
	}

	h.tx = tx
	h.state = txActive
	h.log.Debug().Str("isolation", level.String()).Msg("Transaction started")
	return nil
}

// Commit commits the open transaction.
func (h *Handle) Commit() error {
	if h.tx == nil {
		return &TransactionError{Op: "commit", Err: ErrNotInTransaction}
	}

	err := h.tx.Commit()
	h.tx = nil
	if err != nil {
		h.state = txRolledBack
		return &TransactionError{Op: "commit", Err: err}
	}

	h.state = txCommitted
	h.log.Debug().Msg("Transaction committed")
	return nil
}

// Rollback aborts the open transaction.
func (h *Handle) Rollback() error {
	if h.tx == nil {
		return &TransactionError{Op: "rollback", Err: ErrNotInTransaction}
	}

	err := h.tx.Rollback()
	h.tx = nil
	h.state = txRolledBack
	if err != nil {
		return &TransactionError{Op: "rollback", Err: err}
	}

	h.log.Debug().Msg("Transaction rolled back")
	return nil
}

// SetIsolation requests a transaction isolation level. Outside a
// transaction the level is only recorded and applied to the next Begin.
// Inside a transaction the request is sent to the backend; drivers that
// refuse mid-transaction changes surface as an IsolationError whose cause
// is the driver's original rejection.
func (h *Handle) SetIsolation(ctx context.Context, level sql.IsolationLevel) error {
	if h.closed {
		return &TransactionError{Op: "set isolation", Err: ErrHandleClosed}
	}

	if h.tx == nil {
		h.isolation = level
		return nil
	}

	stmt, ok := isolationSQL(level)
	if !ok {
		return &IsolationError{Level: level, Err: ErrUnsupportedIsolation}
	}
	if _, err := h.tx.ExecContext(ctx, "SET TRANSACTION ISOLATION LEVEL "+stmt); err != nil {
		return &IsolationError{Level: level, Err: err}
	}

	h.isolation = level
	return nil
}

// Transact runs fn inside a transaction scoped to this call: begin before,
// commit after, rollback on error or panic. The transaction is guaranteed
// closed before Transact returns. If a transaction is already open on the
// handle, fn joins it and the enclosing owner keeps control of the outcome.
//
// Unlike Begin, Transact is legal on auto-closing handles: the whole
// transaction lives inside one call, while the connection is still held.
func (h *Handle) Transact(ctx context.Context, level sql.IsolationLevel, fn func(ctx context.Context) error) (err error) {
	if h.closed {
		return &TransactionError{Op: "transact", Err: ErrHandleClosed}
	}

	if h.tx != nil {
		return fn(ctx)
	}

	if err = h.begin(ctx, level); err != nil {
		return err
	}

	panicked := true
	defer func() {
		if panicked {
			if rbErr := h.Rollback(); rbErr != nil {
				h.log.Error().Err(rbErr).Msg("Failed to roll back after panic")
			}
		}
	}()

	if err = fn(ctx); err != nil {
		panicked = false
		h.log.Warn().Err(err).Msg("Rolling back transaction after error")
		if rbErr := h.Rollback(); rbErr != nil {
			h.log.Error().Err(rbErr).Msg("Rollback failed; returning original error")
		}
		// The caller's failure propagates unchanged.
		return err
	}

	panicked = false
	return h.Commit()
}

// isolationSQL renders an isolation level as standard SQL, or reports that
// it has no rendering.
func isolationSQL(level sql.IsolationLevel) (string, bool) {
	switch level {
	case sql.LevelSerializable:
		return "SERIALIZABLE", true
	case sql.LevelRepeatableRead:
		return "REPEATABLE READ", true
	case sql.LevelReadCommitted:
		return "READ COMMITTED", true
	case sql.LevelReadUncommitted:
		return "READ UNCOMMITTED", true
	default:
		return "", false
	}
}
