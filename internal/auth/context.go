// ABOUTME: Identity propagation through context.Context for request handlers.
// ABOUTME: Provides WithIdentity/FromContext mirroring the token claims.

package auth

import "context"

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the verified identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the identity from the context. The second return is
// false when no identity was attached (anonymous caller).
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
