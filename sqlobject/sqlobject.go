package sqlobject

import (
	"context"
	"reflect"

	"github.com/gaborage/go-sqlobject/handle"
	"github.com/gaborage/go-sqlobject/logger"
)

// Option customizes materialization.
type Option func(*options)

type options struct {
	log logger.Logger
}

// WithLogger attaches a logger to the materialized object. Handlers log
// routing decisions at debug level through it.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// instance is the runtime state behind one materialized SQL object: the
// shared handler table, the object's supplier and the pre-assigned base
// implementations captured before the trampolines took over the fields.
type instance struct {
	core  *Core
	table *handlerTable
	sup   handle.Supplier
	log   logger.Logger
	bases map[fieldKey]reflect.Value
}

// acquire obtains the execution handle for one call, together with the
// release that undoes the acquisition. A handle carried by ctx wins over
// the supplier: that is how a call joins the transaction of an enclosing
// wrapped call. Handlers that never reach acquire never touch the supplier.
func (inst *instance) acquire(ctx context.Context) (*handle.Handle, func(), error) {
	if inst.core.Closed() {
		return nil, nil, ErrClosed
	}

	if h, ok := handle.FromContext(ctx); ok && !h.Closed() {
		return h, func() {}, nil
	}

	h, err := inst.sup.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return h, func() {
		if err := inst.sup.Release(h); err != nil {
			inst.log.Error().Err(err).Str("object", inst.core.String()).Msg("Failed to release handle")
		}
	}, nil
}

// withHandle runs fn against a handle acquired for the duration of fn.
func (inst *instance) withHandle(ctx context.Context, fn func(h *handle.Handle) error) error {
	h, release, err := inst.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(h)
}

// New materializes a fresh SQL object of the declared type T. The type's
// handler table is built on first use and reused afterwards; construction
// itself never touches the database.
func New[T any](sup handle.Supplier, opts ...Option) (*T, error) {
	target := new(T)
	if err := Materialize(target, sup, opts...); err != nil {
		return nil, err
	}
	return target, nil
}

// Materialize turns target, a pointer to a declared struct, into a live
// SQL object in place. Func fields assigned before the call are captured
// as base implementations: untagged ones become pass-throughs and
// tx-tagged ones get wrapped in a call-scoped transaction. Every other
// tagged field is bound to its classified handler.
func Materialize(target any, sup handle.Supplier, opts ...Option) error {
	if sup == nil {
		return ErrNilSupplier
	}

	v := reflect.ValueOf(target)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return ErrNilTarget
	}

	o := options{log: logger.Noop()}
	for _, opt := range opts {
		opt(&o)
	}
	return materializeValue(v, sup, o.log)
}

// materializeValue binds handlers into the struct behind ptr. Children
// created through create fields come through here too, sharing the
// parent's supplier and logger.
func materializeValue(ptr reflect.Value, sup handle.Supplier, log logger.Logger) error {
	table, err := tableFor(ptr.Type().Elem())
	if err != nil {
		return err
	}

	elem := ptr.Elem()
	inst := &instance{
		core:  elem.FieldByIndex(table.corePath).Addr().Interface().(*Core),
		table: table,
		sup:   sup,
		log:   log,
		bases: make(map[fieldKey]reflect.Value),
	}
	inst.core.init(table.name, sup, log)

	for _, b := range table.bindings {
		field := elem.FieldByIndex(b.path)

		if b.needsBase {
			if field.IsNil() {
				if _, wrapped := b.h.(*txHandler); wrapped {
					return &BuildError{Type: table.name, Field: b.name, Err: ErrMissingBase}
				}
				// An unassigned pass-through stays nil; calling it is the
				// caller's nil dereference, same as any func field.
				continue
			}
			// Copy the func value out of the field: the field Value aliases
			// the struct's memory, which the trampoline is about to overwrite.
			inst.bases[b.key] = reflect.ValueOf(field.Interface())
		}

		field.Set(trampoline(inst, b))
	}

	if table.transactionalPath != nil {
		elem.FieldByIndex(table.transactionalPath).Addr().Interface().(*Transactional).bind(inst)
	}
	if table.withHandlePath != nil {
		elem.FieldByIndex(table.withHandlePath).Addr().Interface().(*WithHandle).bind(inst)
	}

	log.Debug().
		Str("object", inst.core.String()).
		Int("fields", len(table.bindings)).
		Msg("SQL object materialized")
	return nil
}

// trampoline builds the func value bound into one field: every call routes
// through the object's dispatcher to the field's handler.
func trampoline(inst *instance, b fieldBinding) reflect.Value {
	key := b.key
	return reflect.MakeFunc(b.ftype, func(args []reflect.Value) []reflect.Value {
		return dispatch(inst, key, args)
	})
}
