package sqlobject

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gaborage/go-sqlobject/internal/reflection"
)

// fieldKey identifies one bound field within a built type: the field's
// ordinal in the table's binding list. Classification is deterministic,
// so ordinals are stable across builds of the same type, and fields that
// reach the table through different embedding paths keep distinct keys
// even when they come from the same embedded struct type.
type fieldKey int

// fieldBinding is the build-time record of one func field: where it lives
// in the declared struct and the handler that serves it.
type fieldBinding struct {
	key       fieldKey
	name      string
	path      []int
	ftype     reflect.Type
	h         handler
	needsBase bool
}

// handlerTable is the immutable classification of a declared type. One
// table is built per type, cached for the process lifetime, and shared by
// every instance of the type.
type handlerTable struct {
	typ      reflect.Type
	name     string
	bindings []fieldBinding
	entries  map[fieldKey]handler

	corePath          []int
	transactionalPath []int
	withHandlePath    []int
}

var (
	coreType          = reflect.TypeOf(Core{})
	transactionalType = reflect.TypeOf(Transactional{})
	withHandleType    = reflect.TypeOf(WithHandle{})
)

// tables caches built handler tables keyed by declared type. The cache is
// append-only: entries are never evicted or replaced, so two goroutines
// racing on the same type always end up sharing one table.
var (
	tables     sync.Map
	buildGroup singleflight.Group
)

// typeKey renders a singleflight key unique per reflect.Type. The name
// alone is not enough: distinct local or anonymous types can share one
// rendering, so the type's canonical runtime pointer is appended.
func typeKey(t reflect.Type) string {
	return fmt.Sprintf("%s@%p", t, t)
}

// tableFor returns the handler table of t, building it on first use.
// Concurrent first uses of the same type collapse into a single build.
func tableFor(t reflect.Type) (*handlerTable, error) {
	if cached, ok := tables.Load(t); ok {
		return cached.(*handlerTable), nil
	}

	built, err, _ := buildGroup.Do(typeKey(t), func() (any, error) {
		if cached, ok := tables.Load(t); ok {
			return cached.(*handlerTable), nil
		}
		table, err := buildTable(t)
		if err != nil {
			return nil, err
		}
		actual, _ := tables.LoadOrStore(t, table)
		return actual.(*handlerTable), nil
	})
	if err != nil {
		return nil, err
	}
	return built.(*handlerTable), nil
}

// buildTable classifies every field of the declared type. Classification
// is deterministic: the same type always yields the same table.
func buildTable(t reflect.Type) (*handlerTable, error) {
	if t.Kind() != reflect.Struct {
		return nil, &BuildError{Type: reflection.TypeName(t), Err: ErrNotStruct}
	}

	table := &handlerTable{
		typ:     t,
		name:    reflection.TypeNameShort(t),
		entries: make(map[fieldKey]handler),
	}

	if err := walk(t, nil, table); err != nil {
		return nil, err
	}
	if table.corePath == nil {
		return nil, &BuildError{Type: table.name, Err: ErrMissingCore}
	}

	for _, b := range table.bindings {
		table.entries[b.key] = b.h
	}
	return table, nil
}

// walk classifies the fields of owner, recursing into embedded structs so
// a declared type can reuse the tagged surface of another.
func walk(owner reflect.Type, path []int, table *handlerTable) error {
	for i := 0; i < owner.NumField(); i++ {
		f := owner.Field(i)
		fieldPath := append(append([]int(nil), path...), i)

		if f.Anonymous {
			switch f.Type {
			case coreType:
				if table.corePath != nil {
					return &BuildError{Type: table.name, Field: f.Name, Err: ErrDuplicateCore}
				}
				table.corePath = fieldPath
				continue
			case transactionalType:
				table.transactionalPath = fieldPath
				continue
			case withHandleType:
				table.withHandlePath = fieldPath
				continue
			}
			if f.Type.Kind() == reflect.Struct {
				if err := walk(f.Type, fieldPath, table); err != nil {
					return err
				}
				continue
			}
		}

		if f.Type.Kind() != reflect.Func {
			if _, tagged, _ := parseFieldTag(f); tagged {
				return &BuildError{Type: table.name, Field: f.Name,
					Err: fmt.Errorf("statement tags apply to func fields, not %s", f.Type)}
			}
			continue
		}
		if !f.IsExported() {
			continue
		}

		binding, err := classifyField(fieldKey(len(table.bindings)), f, fieldPath, table.name)
		if err != nil {
			return err
		}
		table.bindings = append(table.bindings, binding)
	}
	return nil
}

// classifyField resolves one exported func field into a binding. Untagged
// fields become pass-throughs: the materialized object calls whatever
// implementation was assigned before materialization, never the database.
func classifyField(key fieldKey, f reflect.StructField, path []int, typeName string) (fieldBinding, error) {
	binding := fieldBinding{key: key, name: f.Name, path: path, ftype: f.Type}

	tag, tagged, err := parseFieldTag(f)
	if err != nil {
		return fieldBinding{}, &BuildError{Type: typeName, Field: f.Name, Err: err}
	}
	if !tagged {
		binding.h = &passThroughHandler{key: key, field: f.Name}
		binding.needsBase = true
		return binding, nil
	}

	switch tag.kind {
	case tagCreate:
		child, err := resolveChildType(f.Type)
		if err != nil {
			return fieldBinding{}, &BuildError{Type: typeName, Field: f.Name, Err: err}
		}
		binding.h = &createHandler{field: f.Name, ftype: f.Type, child: child}

	case tagTx:
		if err := validateWrappable(f.Type); err != nil {
			return fieldBinding{}, &BuildError{Type: typeName, Field: f.Name, Err: err}
		}
		binding.h = &txHandler{key: key, field: f.Name, ftype: f.Type, level: tag.isolation}
		binding.needsBase = true

	default:
		ret, err := resolveReturnPlan(f.Type, tag.kind)
		if err != nil {
			return fieldBinding{}, &BuildError{Type: typeName, Field: f.Name, Err: err}
		}
		arg, err := resolveArgPlan(f.Type, tag.kind)
		if err != nil {
			return fieldBinding{}, &BuildError{Type: typeName, Field: f.Name, Err: err}
		}
		binding.h = &statementHandler{
			hkind:     statementKind(tag.kind),
			field:     f.Name,
			statement: tag.statement,
			ftype:     f.Type,
			ret:       ret,
			arg:       arg,
		}
	}
	return binding, nil
}

func statementKind(kind tagKind) handlerKind {
	switch kind {
	case tagUpdate:
		return kindUpdate
	case tagBatch:
		return kindBatch
	case tagCall:
		return kindCall
	default:
		return kindQuery
	}
}

// resolveChildType validates a create field's shape, func() (*Child, error),
// and returns the child struct type. The child's own table is built lazily
// on its first materialization, so mutually referencing types stay legal.
func resolveChildType(ft reflect.Type) (reflect.Type, error) {
	if ft.NumIn() != 0 {
		return nil, errors.New("create fields take no arguments")
	}
	if ft.NumOut() != 2 || !reflection.IsError(ft.Out(1)) {
		return nil, errors.New("create fields return (*Child, error)")
	}
	out := ft.Out(0)
	if out.Kind() != reflect.Pointer || out.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("create fields return a pointer to a struct, not %s", out)
	}
	return out.Elem(), nil
}

// validateWrappable checks that a tx-tagged field can be wrapped: context
// first, error last.
func validateWrappable(ft reflect.Type) error {
	if ft.IsVariadic() {
		return errors.New("variadic fields are not supported")
	}
	if ft.NumIn() == 0 || !reflection.IsContext(ft.In(0)) {
		return errors.New("first parameter must be context.Context")
	}
	if ft.NumOut() == 0 || !reflection.IsError(ft.Out(ft.NumOut()-1)) {
		return errors.New("last return value must be error")
	}
	return nil
}
