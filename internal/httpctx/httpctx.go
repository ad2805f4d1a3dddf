// Package httpctx carries the per-request values the HTTP wrapper of §4.6
// attaches before invoking a component's handler: the reconciled caller and
// the request id used to correlate error envelopes with server logs. It is
// deliberately tiny and imports only record (not auth) so that both the HTTP
// surface and the component variants can depend on it without a cycle.
package httpctx

import (
	"context"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
)

type userKey struct{}
type requestIDKey struct{}

// WithUser attaches the reconciled caller to ctx (§4.4).
func WithUser(ctx context.Context, user record.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext retrieves the caller attached by WithUser.
func UserFromContext(ctx context.Context) (record.User, bool) {
	u, ok := ctx.Value(userKey{}).(record.User)
	return u, ok
}

// WithRequestID attaches the request id used in the error envelope (§4.6).
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext retrieves the id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}
