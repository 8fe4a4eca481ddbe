package sqlobject

import (
	"context"
	"database/sql"
	"errors"
	"reflect"

	"github.com/gaborage/go-sqlobject/handle"
)

// handlerKind names the classification of a method for logging and tests.
type handlerKind int

const (
	kindQuery handlerKind = iota
	kindUpdate
	kindBatch
	kindCall
	kindCreate
	kindTransaction
	kindPassThrough
	kindMixin
)

func (k handlerKind) String() string {
	switch k {
	case kindQuery:
		return "query"
	case kindUpdate:
		return "update"
	case kindBatch:
		return "batch"
	case kindCall:
		return "call"
	case kindCreate:
		return "create"
	case kindTransaction:
		return "transaction"
	case kindPassThrough:
		return "pass-through"
	case kindMixin:
		return "mixin"
	default:
		return "unknown"
	}
}

// handler is the classified unit of behavior bound to one declared field.
// Exactly one handler executes per routed call.
type handler interface {
	kind() handlerKind
	invoke(inst *instance, args []reflect.Value) []reflect.Value
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

// results assembles the reflect.Values a trampoline must return: zero
// values for every declared return, the produced value (if any) in first
// position and the error in last.
func results(ft reflect.Type, value reflect.Value, err error) []reflect.Value {
	out := make([]reflect.Value, ft.NumOut())
	for i := range out {
		out[i] = reflect.Zero(ft.Out(i))
	}

	if err == nil && ft.NumOut() > 1 && value.IsValid() {
		slot := reflect.New(ft.Out(0)).Elem()
		slot.Set(value)
		out[0] = slot
	}
	if err != nil {
		slot := reflect.New(errType).Elem()
		slot.Set(reflect.ValueOf(err))
		out[len(out)-1] = slot
	}
	return out
}

// callError extracts the trailing error of a reflective call result.
func callError(out []reflect.Value) error {
	last := out[len(out)-1]
	if last.IsNil() {
		return nil
	}
	return last.Interface().(error)
}

// statementHandler executes one SQL statement per call: it binds the
// call's arguments into the statement template, runs it against the
// lazily acquired handle and converts the raw result per the return plan
// resolved at build time.
type statementHandler struct {
	hkind     handlerKind
	field     string
	statement string
	ftype     reflect.Type
	ret       returnPlan
	arg       argPlan
}

func (s *statementHandler) kind() handlerKind {
	return s.hkind
}

func (s *statementHandler) invoke(inst *instance, args []reflect.Value) []reflect.Value {
	ctx := args[0].Interface().(context.Context)

	h, release, err := inst.acquire(ctx)
	if err != nil {
		return results(s.ftype, reflect.Value{}, err)
	}
	defer release()

	value, err := s.execute(ctx, h, args)
	return results(s.ftype, value, err)
}

func (s *statementHandler) execute(ctx context.Context, h *handle.Handle, args []reflect.Value) (reflect.Value, error) {
	if s.hkind == kindBatch {
		return s.runBatch(ctx, h, args)
	}

	switch s.ret.shape {
	case shapeNone, shapeRowsAffected, shapeResult:
		return s.runExec(ctx, h, args)
	default:
		return s.runQuery(ctx, h, args)
	}
}

// positionalArgs unpacks every argument after the context.
func positionalArgs(args []reflect.Value) []any {
	out := make([]any, 0, len(args)-1)
	for _, a := range args[1:] {
		out = append(out, a.Interface())
	}
	return out
}

func (s *statementHandler) runQuery(ctx context.Context, h *handle.Handle, args []reflect.Value) (reflect.Value, error) {
	named := s.arg.mode == bindNamed
	var arg any
	if named {
		arg = args[1].Interface()
	}

	switch s.ret.shape {
	case shapeSlice:
		dest := reflect.New(s.ret.value)
		var err error
		if named {
			err = h.NamedSelect(ctx, dest.Interface(), s.statement, arg)
		} else {
			err = h.Select(ctx, dest.Interface(), s.statement, positionalArgs(args)...)
		}
		if err != nil {
			return reflect.Value{}, err
		}
		return dest.Elem(), nil

	case shapeOptional:
		dest := reflect.New(s.ret.elem)
		var err error
		if named {
			err = h.NamedGet(ctx, dest.Interface(), s.statement, arg)
		} else {
			err = h.Get(ctx, dest.Interface(), s.statement, positionalArgs(args)...)
		}
		if errors.Is(err, sql.ErrNoRows) {
			return reflect.Zero(s.ret.value), nil
		}
		if err != nil {
			return reflect.Value{}, err
		}
		return dest, nil

	default: // shapeSingle
		dest := reflect.New(s.ret.value)
		var err error
		if named {
			err = h.NamedGet(ctx, dest.Interface(), s.statement, arg)
		} else {
			err = h.Get(ctx, dest.Interface(), s.statement, positionalArgs(args)...)
		}
		if err != nil {
			return reflect.Value{}, err
		}
		return dest.Elem(), nil
	}
}

func (s *statementHandler) runExec(ctx context.Context, h *handle.Handle, args []reflect.Value) (reflect.Value, error) {
	var res sql.Result
	var err error
	if s.arg.mode == bindNamed {
		res, err = h.NamedExec(ctx, s.statement, args[1].Interface())
	} else {
		res, err = h.Exec(ctx, s.statement, positionalArgs(args)...)
	}
	if err != nil {
		return reflect.Value{}, err
	}

	switch s.ret.shape {
	case shapeRowsAffected:
		n, err := res.RowsAffected()
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(n), nil
	case shapeResult:
		return reflect.ValueOf(res), nil
	default:
		return reflect.Value{}, nil
	}
}

func (s *statementHandler) runBatch(ctx context.Context, h *handle.Handle, args []reflect.Value) (reflect.Value, error) {
	slice := args[1]
	records := make([]any, 0, slice.Len())
	for i := 0; i < slice.Len(); i++ {
		records = append(records, slice.Index(i).Interface())
	}

	counts, err := h.NamedBatch(ctx, s.statement, records)
	if err != nil {
		return reflect.Value{}, err
	}

	switch s.ret.shape {
	case shapeCounts:
		return reflect.ValueOf(counts), nil
	case shapeRowsAffected:
		var total int64
		for _, n := range counts {
			total += n
		}
		return reflect.ValueOf(total), nil
	default:
		return reflect.Value{}, nil
	}
}

// createHandler materializes a child SQL object of the declared return
// type. The child shares the parent's supplier: it executes against the
// same handle and never outlives the parent's connection.
type createHandler struct {
	field string
	ftype reflect.Type
	child reflect.Type // the child's struct type
}

func (c *createHandler) kind() handlerKind {
	return kindCreate
}

func (c *createHandler) invoke(inst *instance, _ []reflect.Value) []reflect.Value {
	ptr := reflect.New(c.child)
	if err := materializeValue(ptr, inst.sup, inst.log); err != nil {
		return results(c.ftype, reflect.Value{}, err)
	}
	return results(c.ftype, ptr, nil)
}

// txHandler wraps a field's pre-assigned implementation in a call-scoped
// transaction: begin before the call, commit after, rollback on error or
// panic. The transaction is closed before the wrapped call returns.
type txHandler struct {
	key   fieldKey
	field string
	ftype reflect.Type
	level sql.IsolationLevel
}

func (t *txHandler) kind() handlerKind {
	return kindTransaction
}

func (t *txHandler) invoke(inst *instance, args []reflect.Value) []reflect.Value {
	ctx := args[0].Interface().(context.Context)
	base := inst.bases[t.key]

	h, release, err := inst.acquire(ctx)
	if err != nil {
		return results(t.ftype, reflect.Value{}, err)
	}
	defer release()

	var out []reflect.Value
	err = h.Transact(ctx, t.level, func(txCtx context.Context) error {
		// The base runs with the transaction's handle in its context, so
		// every nested statement call joins the same transaction.
		joined := make([]reflect.Value, len(args))
		copy(joined, args)
		joined[0] = reflect.ValueOf(handle.WithContext(txCtx, h))
		out = base.Call(joined)
		return callError(out)
	})
	if err != nil {
		// Covers both begin/commit failures and the base's own error,
		// which Transact propagates unchanged after rolling back.
		return results(t.ftype, reflect.Value{}, err)
	}
	return out
}

// passThroughHandler invokes the field's pre-assigned implementation with
// no database interaction: the supplier is never consulted.
type passThroughHandler struct {
	key   fieldKey
	field string
}

func (p *passThroughHandler) kind() handlerKind {
	return kindPassThrough
}

func (p *passThroughHandler) invoke(inst *instance, args []reflect.Value) []reflect.Value {
	return inst.bases[p.key].Call(args)
}
