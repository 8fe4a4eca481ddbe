package sqlobject

import (
	"context"
	"database/sql"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gaborage/go-sqlobject/handle"
	"github.com/gaborage/go-sqlobject/logger"
)

// Core is the required lifecycle mixin of every declared type. Embedding
// it gives a SQL object its identity, its close semantics and its string
// rendering. A declared type that does not embed Core fails to build.
//
// SQL objects have no value equality: two objects are the same object
// exactly when they are the same pointer.
type Core struct {
	name        string
	id          uuid.UUID
	sup         handle.Supplier
	log         logger.Logger
	initialized bool
	closed      atomic.Bool
}

func (c *Core) init(name string, sup handle.Supplier, log logger.Logger) {
	c.name = name
	c.id = uuid.New()
	c.sup = sup
	c.log = log
	c.initialized = true
}

// Close releases the object's supplier. Closing is idempotent; every call
// after the first is a no-op returning nil. Children created from this
// object become unusable once their shared supplier is gone.
func (c *Core) Close() error {
	if !c.initialized {
		return ErrNotMaterialized
	}
	if c.closed.Swap(true) {
		return nil
	}
	c.log.Debug().Str("object", c.String()).Msg("SQL object closed")
	return c.sup.Close()
}

// Closed reports whether Close has been called.
func (c *Core) Closed() bool {
	return c.closed.Load()
}

// String renders the object as its type name and a short instance id,
// stable for the object's lifetime.
func (c *Core) String() string {
	if !c.initialized {
		return "<unmaterialized sql object>"
	}
	return c.name + "@" + c.id.String()[:8]
}

// Transactional adds explicit transaction control to a declared type.
// Materialize populates every func field; the zero value is inert.
//
// Begin, Commit and Rollback drive a transaction on the supplier's stable
// handle and fail with a handle.TransactionError when the supplier hands
// out auto-closing handles, since such a transaction would lose its
// connection the moment the call returned. Transact works everywhere: the
// whole transaction lives inside the one call.
type Transactional struct {
	Begin         func(ctx context.Context) error
	Commit        func() error
	Rollback      func() error
	InTransaction func() bool
	SetIsolation  func(ctx context.Context, level sql.IsolationLevel) error

	// Transact runs fn inside a call-scoped transaction at the handle's
	// current isolation level; TransactIsolated pins the level explicitly.
	Transact         func(ctx context.Context, fn func(ctx context.Context) error) error
	TransactIsolated func(ctx context.Context, level sql.IsolationLevel, fn func(ctx context.Context) error) error
}

func (t *Transactional) bind(inst *instance) {
	t.Begin = func(ctx context.Context) error {
		return inst.withHandle(ctx, func(h *handle.Handle) error {
			return h.Begin(ctx)
		})
	}
	t.Commit = func() error {
		return inst.withHandle(context.Background(), func(h *handle.Handle) error {
			return h.Commit()
		})
	}
	t.Rollback = func() error {
		return inst.withHandle(context.Background(), func(h *handle.Handle) error {
			return h.Rollback()
		})
	}
	t.InTransaction = func() bool {
		open := false
		err := inst.withHandle(context.Background(), func(h *handle.Handle) error {
			open = h.InTransaction()
			return nil
		})
		return err == nil && open
	}
	t.SetIsolation = func(ctx context.Context, level sql.IsolationLevel) error {
		return inst.withHandle(ctx, func(h *handle.Handle) error {
			return h.SetIsolation(ctx, level)
		})
	}
	t.Transact = func(ctx context.Context, fn func(ctx context.Context) error) error {
		return inst.withHandle(ctx, func(h *handle.Handle) error {
			return h.Transact(ctx, h.Isolation(), func(txCtx context.Context) error {
				return fn(handle.WithContext(txCtx, h))
			})
		})
	}
	t.TransactIsolated = func(ctx context.Context, level sql.IsolationLevel, fn func(ctx context.Context) error) error {
		return inst.withHandle(ctx, func(h *handle.Handle) error {
			return h.Transact(ctx, level, func(txCtx context.Context) error {
				return fn(handle.WithContext(txCtx, h))
			})
		})
	}
}

// WithHandle exposes the underlying execution handle to a declared type,
// for the occasional statement the tag surface cannot express.
type WithHandle struct {
	// UseHandle acquires a handle for the duration of fn and releases it
	// afterwards. Safe under every supplier.
	UseHandle func(ctx context.Context, fn func(h *handle.Handle) error) error

	// Handle returns the supplier's stable handle. It fails with
	// handle.ErrNoStableConnection when the supplier hands out
	// auto-closing handles, which must not escape their call.
	Handle func(ctx context.Context) (*handle.Handle, error)
}

func (w *WithHandle) bind(inst *instance) {
	w.UseHandle = func(ctx context.Context, fn func(h *handle.Handle) error) error {
		return inst.withHandle(ctx, fn)
	}
	w.Handle = func(ctx context.Context) (*handle.Handle, error) {
		h, release, err := inst.acquire(ctx)
		if err != nil {
			return nil, err
		}
		if h.AutoClosing() {
			release()
			return nil, handle.ErrNoStableConnection
		}
		// Stable handles stay caller-owned; releasing is a no-op.
		release()
		return h, nil
	}
}
