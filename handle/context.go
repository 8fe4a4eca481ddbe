package handle

import "context"

type ctxKey struct{}

// WithContext returns a context carrying h. Statement calls that receive
// this context execute against h instead of consulting their supplier,
// which is how nested calls join an enclosing call-scoped transaction.
func WithContext(ctx context.Context, h *Handle) context.Context {
	return context.WithValue(ctx, ctxKey{}, h)
}

// FromContext returns the handle carried by ctx, if any.
func FromContext(ctx context.Context) (*Handle, bool) {
	h, ok := ctx.Value(ctxKey{}).(*Handle)
	return h, ok
}
