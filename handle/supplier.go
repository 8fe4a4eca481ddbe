package handle

import (
	"context"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
)

// Supplier yields the handle a proxy call executes against. Handlers
// consult the supplier at most once per call, and only for calls that
// actually touch the database; a call that needs no handle never reaches
// the supplier.
type Supplier interface {
	// Acquire returns the handle for the current call.
	Acquire(ctx context.Context) (*Handle, error)

	// Release returns a handle obtained from Acquire once the call is done.
	Release(h *Handle) error

	// Close releases the supplier's underlying resources if it owns them
	// exclusively. Closing twice is a no-op.
	Close() error
}

// boundSupplier serves one stable, externally managed handle. Transactions
// begun on it span calls, which is what makes explicit Begin/Commit usable.
type boundSupplier struct {
	h *Handle
}

// Bound returns a Supplier that yields the same stable handle for every
// call. The handle stays owned by the caller: releasing after a call and
// closing the supplier are both no-ops.
func Bound(h *Handle) Supplier {
	return &boundSupplier{h: h}
}

func (s *boundSupplier) Acquire(_ context.Context) (*Handle, error) {
	if s.h.Closed() {
		return nil, ErrHandleClosed
	}
	return s.h, nil
}

func (s *boundSupplier) Release(_ *Handle) error {
	return nil
}

func (s *boundSupplier) Close() error {
	return nil
}

// onDemandSupplier produces a fresh auto-closing handle per call from a
// shared pool. The handle is marked auto-closing, so a caller-visible Begin
// on it is rejected; call-scoped transactions still work.
type onDemandSupplier struct {
	db     *sqlx.DB
	opts   []Option
	closed atomic.Bool
}

// OnDemand returns a Supplier that yields a fresh per-call handle from db.
// The given options are applied to every produced handle. The pool remains
// owned by the caller.
func OnDemand(db *sqlx.DB, opts ...Option) Supplier {
	return &onDemandSupplier{db: db, opts: opts}
}

func (s *onDemandSupplier) Acquire(_ context.Context) (*Handle, error) {
	if s.closed.Load() {
		return nil, ErrSupplierClosed
	}
	h := New(s.db, s.opts...)
	h.autoClosing = true
	return h, nil
}

func (s *onDemandSupplier) Release(h *Handle) error {
	if h == nil {
		return nil
	}
	return h.Close()
}

func (s *onDemandSupplier) Close() error {
	s.closed.Store(true)
	return nil
}
