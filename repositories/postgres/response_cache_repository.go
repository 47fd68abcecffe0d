package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-chat-gateway/repositories"
)

// ResponseCacheRepository implements the repositories.ResponseCacheRepository interface
type ResponseCacheRepository struct {
	db     *DB
	logger *zap.Logger
	now    func() time.Time
}

// NewResponseCacheRepository creates a new response cache repository
func NewResponseCacheRepository(db *DB, logger *zap.Logger) repositories.ResponseCacheRepository {
	return newResponseCacheRepository(db, logger)
}

func newResponseCacheRepository(db *DB, logger *zap.Logger) *ResponseCacheRepository {
	return &ResponseCacheRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Get retrieves a live cache entry
func (r *ResponseCacheRepository) Get(ctx context.Context, key string) (string, bool, error) {
	query := `
		SELECT value
		FROM response_cache
		WHERE key = $1 AND expires_at > $2
	`

	var value string
	err := r.db.QueryRowContext(ctx, query, key, r.now().UTC()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return value, true, nil
}

// Set inserts or replaces a cache entry
func (r *ResponseCacheRepository) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	query := `
		INSERT INTO response_cache (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`

	expiresAt := r.now().UTC().Add(ttl)
	if _, err := r.db.ExecContext(ctx, query, key, value, expiresAt); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}

	r.logger.Debug("cache entry stored", zap.String("key", key), zap.Time("expires_at", expiresAt))
	return nil
}

// DeleteExpired removes expired cache entries
func (r *ResponseCacheRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= $1`, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		r.logger.Info("expired cache entries removed", zap.Int64("count", rows))
	}
	return rows, nil
}
