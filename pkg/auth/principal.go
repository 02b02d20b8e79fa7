package auth

import (
	"context"
	"errors"
	"time"
)

// Principal is the authenticated caller of a request. Account is the
// engine account every write is attributed to.
type Principal struct {
	Account   string
	Issuer    string
	ExpiresAt time.Time
}

type principalKey struct{}

var errNoPrincipal = errors.New("auth: no principal in context")

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// GetPrincipal returns the caller set by NewMiddleware.
func GetPrincipal(ctx context.Context) (*Principal, error) {
	if p, ok := ctx.Value(principalKey{}).(*Principal); ok && p != nil {
		return p, nil
	}
	return nil, errNoPrincipal
}

// CallerFrom returns the authenticated account, or "" for anonymous requests.
// The engine rejects an empty caller on every write.
func CallerFrom(ctx context.Context) string {
	if p, err := GetPrincipal(ctx); err == nil {
		return p.Account
	}
	return ""
}
