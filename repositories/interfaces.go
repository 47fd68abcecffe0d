package repositories

import (
	"context"
	"time"
)

// ResponseCacheRepository persists generated responses keyed by content digest
type ResponseCacheRepository interface {
	// Get returns the value stored under key if it has not expired
	Get(ctx context.Context, key string) (string, bool, error)

	// Set upserts value under key, expiring after ttl
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// DeleteExpired removes rows whose expiry has passed
	DeleteExpired(ctx context.Context) (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	ResponseCache ResponseCacheRepository
}
