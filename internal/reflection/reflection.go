// Package reflection provides internal utility functions for the reflection
// work done by the sqlobject proxy builder.
package reflection

import (
	"context"
	"reflect"
	"strings"
)

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()

// errorType is the reflect.Type of the built-in error interface.
var errorType = reflect.TypeOf((*error)(nil)).Elem()

// TypeName returns the fully qualified type name.
func TypeName(t reflect.Type) string {
	if t == nil {
		return ""
	}

	// Handle pointer types
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t.PkgPath() == "" {
		return t.Name()
	}

	return t.PkgPath() + "." + t.Name()
}

// TypeNameShort returns just the type name without package path.
func TypeNameShort(t reflect.Type) string {
	if t == nil {
		return ""
	}

	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return t.Name()
}

// IsContext reports whether t is exactly context.Context.
func IsContext(t reflect.Type) bool {
	return t == contextType
}

// IsError reports whether t is exactly the error interface.
func IsError(t reflect.Type) bool {
	return t == errorType
}

// FuncSignature renders a function type the way it would appear in source,
// for use in error messages. Non-func types render via reflect's default.
func FuncSignature(t reflect.Type) string {
	if t == nil || t.Kind() != reflect.Func {
		if t == nil {
			return "<nil>"
		}
		return t.String()
	}

	var b strings.Builder
	b.WriteString("func(")
	for i := 0; i < t.NumIn(); i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.In(i).String())
	}
	b.WriteString(")")

	switch t.NumOut() {
	case 0:
	case 1:
		b.WriteString(" ")
		b.WriteString(t.Out(0).String())
	default:
		b.WriteString(" (")
		for i := 0; i < t.NumOut(); i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(t.Out(i).String())
		}
		b.WriteString(")")
	}

	return b.String()
}
