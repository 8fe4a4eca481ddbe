package sqlobject

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// tagKind identifies which statement tag classified a field.
type tagKind int

const (
	tagNone tagKind = iota
	tagQuery
	tagUpdate
	tagBatch
	tagCall
	tagCreate
	tagTx
)

// tagPrecedence lists the recognized tag keys in classification order;
// the first key present on a field wins.
var tagPrecedence = []struct {
	key  string
	kind tagKind
}{
	{"query", tagQuery},
	{"update", tagUpdate},
	{"batch", tagBatch},
	{"call", tagCall},
	{"create", tagCreate},
	{"tx", tagTx},
}

// fieldTag is the parsed declaration of one tagged field.
type fieldTag struct {
	kind      tagKind
	statement string
	isolation sql.IsolationLevel
}

// parseFieldTag reads the first recognized statement tag off a field.
// An empty tag value defaults the statement to the field's own name.
func parseFieldTag(f reflect.StructField) (fieldTag, bool, error) {
	for _, entry := range tagPrecedence {
		value, ok := f.Tag.Lookup(entry.key)
		if !ok {
			continue
		}

		tag := fieldTag{kind: entry.kind, statement: value}
		switch entry.kind {
		case tagCreate:
			// Create tags carry no statement.
		case tagTx:
			level, err := parseIsolation(value)
			if err != nil {
				return fieldTag{}, false, err
			}
			tag.isolation = level
		default:
			if value == "" {
				tag.statement = f.Name
			}
		}
		return tag, true, nil
	}
	return fieldTag{}, false, nil
}

// parseIsolation maps a tx tag value to a sql.IsolationLevel. The empty
// value means the backend default.
func parseIsolation(value string) (sql.IsolationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "default":
		return sql.LevelDefault, nil
	case "serializable":
		return sql.LevelSerializable, nil
	case "repeatable-read", "repeatable read":
		return sql.LevelRepeatableRead, nil
	case "read-committed", "read committed":
		return sql.LevelReadCommitted, nil
	case "read-uncommitted", "read uncommitted":
		return sql.LevelReadUncommitted, nil
	default:
		return sql.LevelDefault, fmt.Errorf("unknown isolation level %q", value)
	}
}
