package cache

import (
	"context"
	"time"
)

// Store is a key-value backend for generated responses. Implementations
// must treat an expired entry as absent.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}
