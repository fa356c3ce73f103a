// Package metadata stores small key/value facts about the local client:
// the logged-in identity and the last navigable URL.
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeyUsername = "session.username"
	KeyToken    = "session.token"
	KeyLocation = "nav.location"
)

type Repository interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}
