package sqlobject

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/gaborage/go-sqlobject/internal/reflection"
)

// resultShape is a statement field's pre-resolved strategy for converting
// the raw database result into the field's declared return values. Shapes
// are resolved once when the handler table is built, never per call.
type resultShape int

const (
	// shapeNone: the field returns only error; the raw result is discarded.
	shapeNone resultShape = iota
	// shapeSingle: one row scanned into the declared value type.
	shapeSingle
	// shapeOptional: *T, nil (without error) when the result set is empty.
	shapeOptional
	// shapeSlice: all rows scanned into the declared slice type.
	shapeSlice
	// shapeRowsAffected: int64 affected-row count of a write.
	shapeRowsAffected
	// shapeCounts: []int64 per-record affected-row counts of a batch.
	shapeCounts
	// shapeResult: the raw sql.Result, for callers that need generated keys.
	shapeResult
)

var (
	int64Type      = reflect.TypeOf(int64(0))
	int64SliceType = reflect.TypeOf([]int64(nil))
	sqlResultType  = reflect.TypeOf((*sql.Result)(nil)).Elem()
	timeType       = reflect.TypeOf(time.Time{})
	mapArgType     = reflect.TypeOf(map[string]any(nil))
)

// returnPlan captures the resolved return shape of one statement field.
type returnPlan struct {
	shape resultShape
	value reflect.Type // first declared return type; nil for shapeNone
	elem  reflect.Type // element type for shapeOptional/shapeSlice
}

// resolveReturnPlan derives the return strategy from a field's func type.
// The last return value must be error; at most one value precedes it.
func resolveReturnPlan(ft reflect.Type, kind tagKind) (returnPlan, error) {
	if ft.NumOut() == 0 || !reflection.IsError(ft.Out(ft.NumOut()-1)) {
		return returnPlan{}, errors.New("last return value must be error")
	}
	if ft.NumOut() > 2 {
		return returnPlan{}, errors.New("at most one value may precede the error return")
	}
	if ft.NumOut() == 1 {
		return returnPlan{shape: shapeNone}, nil
	}

	value := ft.Out(0)

	switch kind {
	case tagUpdate:
		switch {
		case value == int64Type:
			return returnPlan{shape: shapeRowsAffected, value: value}, nil
		case value == sqlResultType:
			return returnPlan{shape: shapeResult, value: value}, nil
		default:
			return returnPlan{}, fmt.Errorf("update fields return int64 or sql.Result, not %s", value)
		}
	case tagBatch:
		switch {
		case value == int64SliceType:
			return returnPlan{shape: shapeCounts, value: value}, nil
		case value == int64Type:
			return returnPlan{shape: shapeRowsAffected, value: value}, nil
		default:
			return returnPlan{}, fmt.Errorf("batch fields return []int64 or int64, not %s", value)
		}
	default: // query, call
		switch {
		// []byte scans as one value; every other slice collects all rows.
		case value.Kind() == reflect.Slice && value.Elem().Kind() != reflect.Uint8:
			return returnPlan{shape: shapeSlice, value: value, elem: value.Elem()}, nil
		case value.Kind() == reflect.Pointer:
			return returnPlan{shape: shapeOptional, value: value, elem: value.Elem()}, nil
		default:
			return returnPlan{shape: shapeSingle, value: value}, nil
		}
	}
}

// bindMode is a statement field's pre-resolved argument binding strategy.
type bindMode int

const (
	// bindNone: no arguments beyond context.
	bindNone bindMode = iota
	// bindNamed: one struct or map argument bound by :name parameters.
	bindNamed
	// bindPositional: scalar arguments bound to '?' placeholders in order.
	bindPositional
	// bindBatchNamed: one slice argument, each element bound by :name.
	bindBatchNamed
)

// argPlan captures the resolved argument binding of one statement field.
type argPlan struct {
	mode bindMode
}

// resolveArgPlan derives the binding strategy from a field's func type.
// Every statement field takes context.Context first.
func resolveArgPlan(ft reflect.Type, kind tagKind) (argPlan, error) {
	if ft.IsVariadic() {
		return argPlan{}, errors.New("variadic fields are not supported")
	}
	if ft.NumIn() == 0 || !reflection.IsContext(ft.In(0)) {
		return argPlan{}, errors.New("first parameter must be context.Context")
	}

	rest := ft.NumIn() - 1

	if kind == tagBatch {
		if rest != 1 || ft.In(1).Kind() != reflect.Slice || !namedBindable(ft.In(1).Elem()) {
			return argPlan{}, errors.New("batch fields take exactly one slice of structs or maps")
		}
		return argPlan{mode: bindBatchNamed}, nil
	}

	switch {
	case rest == 0:
		return argPlan{mode: bindNone}, nil
	case rest == 1 && namedBindable(ft.In(1)):
		return argPlan{mode: bindNamed}, nil
	default:
		return argPlan{mode: bindPositional}, nil
	}
}

// namedBindable reports whether t can feed :name parameter binding: a
// struct (other than time.Time), a pointer to one, or map[string]any.
func namedBindable(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct && t != timeType {
		return true
	}
	return t == mapArgType
}
