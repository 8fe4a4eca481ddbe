package reflection

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct{}

func TestTypeName(t *testing.T) {
	tests := []struct {
		name     string
		typ      reflect.Type
		expected string
	}{
		{
			name:     "nil type",
			typ:      nil,
			expected: "",
		},
		{
			name:     "named struct",
			typ:      reflect.TypeOf(sample{}),
			expected: "github.com/gaborage/go-sqlobject/internal/reflection.sample",
		},
		{
			name:     "pointer unwraps",
			typ:      reflect.TypeOf(&sample{}),
			expected: "github.com/gaborage/go-sqlobject/internal/reflection.sample",
		},
		{
			name:     "builtin",
			typ:      reflect.TypeOf(42),
			expected: "int",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TypeName(tt.typ))
		})
	}
}

func TestTypeNameShort(t *testing.T) {
	assert.Equal(t, "sample", TypeNameShort(reflect.TypeOf(sample{})))
	assert.Equal(t, "sample", TypeNameShort(reflect.TypeOf(&sample{})))
	assert.Equal(t, "", TypeNameShort(nil))
}

func TestIsContext(t *testing.T) {
	ctxType := reflect.TypeOf((*context.Context)(nil)).Elem()
	assert.True(t, IsContext(ctxType))
	assert.False(t, IsContext(reflect.TypeOf("")))
}

func TestIsError(t *testing.T) {
	errType := reflect.TypeOf((*error)(nil)).Elem()
	assert.True(t, IsError(errType))
	assert.False(t, IsError(reflect.TypeOf("")))
}

func TestFuncSignature(t *testing.T) {
	tests := []struct {
		name     string
		fn       any
		expected string
	}{
		{
			name:     "no results",
			fn:       func(int) {},
			expected: "func(int)",
		},
		{
			name:     "single result",
			fn:       func(context.Context, string) error { return nil },
			expected: "func(context.Context, string) error",
		},
		{
			name:     "multiple results",
			fn:       func(context.Context) (int64, error) { return 0, nil },
			expected: "func(context.Context) (int64, error)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FuncSignature(reflect.TypeOf(tt.fn)))
		})
	}

	assert.Equal(t, "<nil>", FuncSignature(nil))
	assert.Equal(t, "string", FuncSignature(reflect.TypeOf("")))
}
