// ABOUTME: Per-request proxy context carried through the component call chain.
// ABOUTME: Provides WithRequest/FromContext so no endpoint state lives in globals.

package proxy

import (
	"context"
)

// RequestInfo identifies one inbound proxy request as it flows through the
// gate, the auth selector, and the forwarder. One value per request; never
// shared across requests.
type RequestInfo struct {
	Endpoint  string // inbound endpoint name: preview, generate, store, ...
	RequestID string // correlation id, minted when the caller sent none
	View      string // caller-context header value, forwarded verbatim
}

// requestKey is the context key type for RequestInfo.
type requestKey struct{}

// WithRequest returns a new context with the RequestInfo attached.
func WithRequest(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, requestKey{}, info)
}

// FromContext retrieves the RequestInfo from the context, returning nil if
// not present.
func FromContext(ctx context.Context) *RequestInfo {
	val := ctx.Value(requestKey{})
	if val == nil {
		return nil
	}
	info, ok := val.(*RequestInfo)
	if !ok {
		return nil
	}
	return info
}
