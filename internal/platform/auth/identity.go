package auth

import "context"

// Identity is the authenticated principal for one request.
type Identity struct {
	UID   string
	Email string

	// RawToken is the bearer credential exactly as the client sent it. The
	// server cart and sync paths forward it to the commerce backend
	// unchanged; this service never mints its own credentials.
	RawToken string
}

type identityKey struct{}

// WithIdentity stores the identity on the context.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity placed by the session middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
