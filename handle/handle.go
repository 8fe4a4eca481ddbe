// Package handle wraps a live database connection behind the execution
// surface the sqlobject proxies drive: positional and named statement
// execution with row-to-struct mapping (via jmoiron/sqlx), plus the
// transaction state machine in transaction.go. A Handle is not safe for
// concurrent use; one handle serves the sequential calls of one proxy.
package handle

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gaborage/go-sqlobject/logger"
)

const (
	// DefaultSlowQueryThreshold defines the default threshold for slow query detection
	DefaultSlowQueryThreshold = 200 * time.Millisecond
	// maxLoggedQueryLength caps statement text in log events
	maxLoggedQueryLength = 1000
)

// Handle executes SQL statements against one database, routing through the
// active transaction when one is open.
type Handle struct {
	db  *sqlx.DB
	tx  *sqlx.Tx
	log logger.Logger

	// autoClosing marks a per-call handle: its connection is released when
	// the owning call returns, so it can never hold a caller-visible
	// transaction open.
	autoClosing bool
	ownsDB      bool
	closed      bool

	state     txState
	isolation sql.IsolationLevel

	slowThreshold time.Duration
}

// Option configures a Handle at construction time.
type Option func(*Handle)

// WithLogger sets the structured logger used for statement and transaction
// lifecycle events. The default discards everything.
func WithLogger(log logger.Logger) Option {
	return func(h *Handle) {
		if log != nil {
			h.log = log
		}
	}
}

// WithSlowQueryThreshold overrides the duration above which a successful
// statement is logged at warn level.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(h *Handle) {
		if d > 0 {
			h.slowThreshold = d
		}
	}
}

// New wraps an existing pool in a stable Handle. The pool remains owned by
// the caller; closing the handle does not close the pool.
func New(db *sqlx.DB, opts ...Option) *Handle {
	h := &Handle{
		db:            db,
		log:           logger.Noop(),
		slowThreshold: DefaultSlowQueryThreshold,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// DB exposes the underlying pool, mainly for tests and migrations.
func (h *Handle) DB() *sqlx.DB {
	return h.db
}

// AutoClosing reports whether the handle releases its connection when the
// current call returns. Auto-closing handles cannot host a transaction that
// outlives a call.
func (h *Handle) AutoClosing() bool {
	return h.autoClosing
}

// Closed reports whether the handle has been closed.
func (h *Handle) Closed() bool {
	return h.closed
}

// Close releases the handle. An open transaction is rolled back first.
// Closing twice is a no-op. The pool is closed only if this handle owns it
// (handles created by Open do; wrapped pools stay open).
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true

	if h.tx != nil {
		if err := h.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			h.log.Warn().Err(err).Msg("Failed to roll back open transaction on close")
		} else {
			h.log.Warn().Msg("Rolled back open transaction on close")
		}
		h.tx = nil
		h.state = txRolledBack
	}

	if h.ownsDB {
		return h.db.Close()
	}
	return nil
}

// ext returns the current execution target: the open transaction if one is
// active, otherwise the pool.
func (h *Handle) ext() sqlx.ExtContext {
	if h.tx != nil {
		return h.tx
	}
	return h.db
}

// Rebind converts '?' placeholders to the bindvar style of the underlying
// driver.
func (h *Handle) Rebind(query string) string {
	return h.ext().Rebind(query)
}

// Get executes a positional query expected to return one row and scans it
// into dest. Returns sql.ErrNoRows when the result set is empty.
func (h *Handle) Get(ctx context.Context, dest any, query string, args ...any) error {
	if h.closed {
		return ErrHandleClosed
	}
	start := time.Now()
	err := sqlx.GetContext(ctx, h.ext(), dest, h.Rebind(query), args...)
	h.track(query, start, err)
	return err
}

// Select executes a positional query and scans all rows into dest, which
// must be a pointer to a slice.
func (h *Handle) Select(ctx context.Context, dest any, query string, args ...any) error {
	if h.closed {
		return ErrHandleClosed
	}
	start := time.Now()
	err := sqlx.SelectContext(ctx, h.ext(), dest, h.Rebind(query), args...)
	h.track(query, start, err)
	return err
}

// Exec executes a positional write statement.
func (h *Handle) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if h.closed {
		return nil, ErrHandleClosed
	}
	start := time.Now()
	res, err := h.ext().ExecContext(ctx, h.Rebind(query), args...)
	h.track(query, start, err)
	return res, err
}

// NamedExec executes a write statement with :name parameters bound from a
// struct or map argument.
func (h *Handle) NamedExec(ctx context.Context, query string, arg any) (sql.Result, error) {
	if h.closed {
		return nil, ErrHandleClosed
	}
	start := time.Now()
	res, err := sqlx.NamedExecContext(ctx, h.ext(), query, arg)
	h.track(query, start, err)
	return res, err
}

// NamedGet executes a :name-parameter query expected to return one row and
// scans it into dest. Returns sql.ErrNoRows when the result set is empty.
func (h *Handle) NamedGet(ctx context.Context, dest any, query string, arg any) error {
	if h.closed {
		return ErrHandleClosed
	}
	start := time.Now()
	err := h.namedGet(ctx, dest, query, arg)
	h.track(query, start, err)
	return err
}

func (h *Handle) namedGet(ctx context.Context, dest any, query string, arg any) error {
	rows, err := sqlx.NamedQueryContext(ctx, h.ext(), query, arg)
	if err != nil {
		return err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	if err := scanRow(rows, dest); err != nil {
		return err
	}
	return rows.Err()
}

// NamedSelect executes a :name-parameter query and scans all rows into
// dest, which must be a pointer to a slice.
func (h *Handle) NamedSelect(ctx context.Context, dest any, query string, arg any) error {
	if h.closed {
		return ErrHandleClosed
	}
	start := time.Now()
	err := h.namedSelect(ctx, dest, query, arg)
	h.track(query, start, err)
	return err
}

func (h *Handle) namedSelect(ctx context.Context, dest any, query string, arg any) error {
	rows, err := sqlx.NamedQueryContext(ctx, h.ext(), query, arg)
	if err != nil {
		return err
	}
	defer rows.Close()
	return scanAll(rows, dest)
}

// NamedBatch executes the statement once per record, all against the same
// execution target, and returns the per-record affected-row counts.
func (h *Handle) NamedBatch(ctx context.Context, query string, records []any) ([]int64, error) {
	if h.closed {
		return nil, ErrHandleClosed
	}
	start := time.Now()

	counts := make([]int64, 0, len(records))
	for _, rec := range records {
		res, err := sqlx.NamedExecContext(ctx, h.ext(), query, rec)
		if err != nil {
			h.track(query, start, err)
			return counts, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			// Drivers without affected-row support still execute the batch.
			n = 0
		}
		counts = append(counts, n)
	}

	h.track(query, start, nil)
	return counts, nil
}

// scanRow scans the current row into dest: struct pointers map by column
// name, anything else scans as a single column.
func scanRow(rows *sqlx.Rows, dest any) error {
	v := reflect.ValueOf(dest)
	if v.Kind() == reflect.Pointer && v.Elem().Kind() == reflect.Struct && v.Elem().Type() != reflect.TypeOf(time.Time{}) {
		return rows.StructScan(dest)
	}
	return rows.Scan(dest)
}

// scanAll appends every remaining row to the slice pointed to by dest.
func scanAll(rows *sqlx.Rows, dest any) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Slice {
		return errors.New("handle: select destination must be a pointer to a slice")
	}

	slice := v.Elem()
	elemType := slice.Type().Elem()
	isStruct := elemType.Kind() == reflect.Struct && elemType != reflect.TypeOf(time.Time{})

	for rows.Next() {
		elem := reflect.New(elemType)
		var err error
		if isStruct {
			err = rows.StructScan(elem.Interface())
		} else {
			err = rows.Scan(elem.Interface())
		}
		if err != nil {
			return err
		}
		slice = reflect.Append(slice, elem.Elem())
	}
	v.Elem().Set(slice)
	return rows.Err()
}

// track emits a completion log event for a statement. Successful statements
// log at debug, slow ones at warn, failures at error (except the benign
// sql.ErrNoRows, which stays at debug).
func (h *Handle) track(query string, start time.Time, err error) {
	elapsed := time.Since(start)
	clamped := clampQuery(query)

	switch {
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		h.log.Error().Err(err).Str("query", clamped).Dur("elapsed", elapsed).Msg("Statement failed")
	case elapsed >= h.slowThreshold:
		h.log.Warn().Str("query", clamped).Dur("elapsed", elapsed).Msg("Slow statement")
	default:
		h.log.Debug().Str("query", clamped).Dur("elapsed", elapsed).Msg("Statement completed")
	}
}

func clampQuery(query string) string {
	if len(query) > maxLoggedQueryLength {
		return query[:maxLoggedQueryLength] + "..."
	}
	return query
}
