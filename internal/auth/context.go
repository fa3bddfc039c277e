// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// AuthContext holds the authenticated identity extracted from a request
// token. Populated by the HTTP middleware and read by handlers.
type AuthContext struct {
	Subject  string   // stable user identifier from the token subject
	Username string   // display name, informational only
	Roles    []string // roles assigned to this user
}

// CanProxy returns true if the user may invoke the content proxy. Editors
// and administrators qualify.
func (a *AuthContext) CanProxy() bool {
	for _, r := range a.Roles {
		if r == "editor" || r == "administrator" {
			return true
		}
	}
	return false
}

// IsAdmin returns true if the user holds the administrator role.
func (a *AuthContext) IsAdmin() bool {
	for _, r := range a.Roles {
		if r == "administrator" {
			return true
		}
	}
	return false
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	val := ctx.Value(authContextKey{})
	if val == nil {
		return nil
	}
	auth, ok := val.(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}
