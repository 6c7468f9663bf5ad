package auth

import (
	"context"

	"github.com/friendsincode/slotkeeper/internal/booking"
)

type contextKey string

const claimsContextKey contextKey = "slotkeeperClaims"

// WithClaims attaches JWT claims to the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext retrieves JWT claims from context if present.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok && claims != nil
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (booking.Actor, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return booking.Actor{}, false
	}
	return claims.Actor(), true
}
