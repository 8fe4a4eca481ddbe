package sqlobject

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced while building or using SQL objects.
// These can be used with errors.Is() for programmatic error checking.
var (
	// ErrMissingCore is returned when a declared type does not embed
	// sqlobject.Core, the required lifecycle surface of every proxy.
	ErrMissingCore = errors.New("declared type must embed sqlobject.Core")

	// ErrDuplicateCore is returned when sqlobject.Core is embedded more
	// than once in a declared type's field surface.
	ErrDuplicateCore = errors.New("declared type embeds sqlobject.Core more than once")

	// ErrNotStruct is returned when the declared type is not a struct.
	ErrNotStruct = errors.New("declared type must be a struct")

	// ErrNilTarget is returned when Materialize receives anything but a
	// non-nil pointer to a struct.
	ErrNilTarget = errors.New("materialize target must be a non-nil pointer to a struct")

	// ErrNilSupplier is returned when no handle supplier is provided.
	ErrNilSupplier = errors.New("handle supplier must not be nil")

	// ErrMissingBase is returned when a tx-tagged field has no pre-assigned
	// implementation to wrap.
	ErrMissingBase = errors.New("transaction-wrapped field requires a pre-assigned implementation")

	// ErrClosed is returned when a database-touching method is invoked on a
	// closed SQL object.
	ErrClosed = errors.New("sql object is closed")

	// ErrNotMaterialized is returned when lifecycle methods run on a value
	// that never went through New or Materialize.
	ErrNotMaterialized = errors.New("sql object was not materialized")
)

// BuildError reports that a declared type could not be turned into a SQL
// object. Build failures are programming mistakes: they surface at the
// first use of the type and are never retried.
type BuildError struct {
	Type  string
	Field string
	Err   error
}

func (e *BuildError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("sqlobject: cannot build %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("sqlobject: cannot build %s.%s: %v", e.Type, e.Field, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
