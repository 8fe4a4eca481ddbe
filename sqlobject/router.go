package sqlobject

import "reflect"

// dispatch routes one intercepted call to the handler classified for the
// field. The table lookup never misses: trampolines are only bound for
// fields the build recorded.
func dispatch(inst *instance, key fieldKey, args []reflect.Value) []reflect.Value {
	h := inst.table.entries[key]

	inst.log.Debug().
		Str("object", inst.core.String()).
		Str("handler", h.kind().String()).
		Msg("Dispatching call")

	return h.invoke(inst, args)
}
