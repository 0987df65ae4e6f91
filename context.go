package loginguard

import (
	"context"

	"github.com/MrEthical07/loginguard/jwt"
)

type clientOriginContextKey struct{}
type sessionContextKey struct{}

// WithClientOrigin attaches the request's network origin to ctx. Login uses
// it when LoginRequest.Origin is empty.
func WithClientOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, clientOriginContextKey{}, origin)
}

// ClientOriginFromContext returns the origin stored by WithClientOrigin.
func ClientOriginFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	origin, _ := ctx.Value(clientOriginContextKey{}).(string)
	return origin
}

// WithSession attaches parsed session claims to ctx.
func WithSession(ctx context.Context, claims *jwt.SessionClaims) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, claims)
}

// SessionFromContext returns the claims stored by WithSession.
func SessionFromContext(ctx context.Context) (*jwt.SessionClaims, bool) {
	if ctx == nil {
		return nil, false
	}
	claims, ok := ctx.Value(sessionContextKey{}).(*jwt.SessionClaims)
	return claims, ok && claims != nil
}
