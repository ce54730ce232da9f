// Package identity resolves connection credentials to stable user IDs.
// Authentication itself (issuing tokens) lives outside the hub; the hub only
// exchanges an opaque token for the user ID it was issued to.
package identity

import (
	"context"
	"errors"
)

// ErrUnauthenticated is returned when a token is unknown, expired, or empty.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

// Resolver exchanges an opaque connection token for a user ID.
type Resolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// StaticResolver resolves tokens from a fixed map. Used in tests and
// single-node dev setups.
type StaticResolver map[string]string

// Resolve implements Resolver.
func (r StaticResolver) Resolve(ctx context.Context, token string) (string, error) {
	userID, ok := r[token]
	if !ok || userID == "" {
		return "", ErrUnauthenticated
	}
	return userID, nil
}
