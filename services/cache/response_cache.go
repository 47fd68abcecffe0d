// Package cache memoizes generated responses by conversation content.
package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/upb/llm-chat-gateway/models"
	"github.com/upb/llm-chat-gateway/services"
)

// DefaultTTL is how long a generated response stays reusable
const DefaultTTL = time.Hour

// Outcome tells a caller whether text came from the cache
type Outcome string

const (
	OutcomeCached    Outcome = "cached"
	OutcomeGenerated Outcome = "generated"
)

// Generator produces the response for a cache miss
type Generator func(ctx context.Context) (string, error)

// ResponseCache resolves requests through a Store, generating on miss.
// Concurrent misses on one key share a single generator call.
type ResponseCache struct {
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

// New creates a response cache; ttl <= 0 selects DefaultTTL
func New(store Store, ttl time.Duration, logger *zap.Logger) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseCache{store: store, ttl: ttl, logger: logger}
}

// TTL returns the lifetime given to stored entries
func (c *ResponseCache) TTL() time.Duration {
	return c.ttl
}

// GetOrGenerate returns the live cached response for (scope, transcript,
// message), or invokes generate, stores its result and returns it.
// Generator errors are returned unchanged and nothing is stored. A store
// that fails on read or write degrades to an uncached call.
func (c *ResponseCache) GetOrGenerate(ctx context.Context, scope string, transcript models.Transcript, message string, generate Generator) (string, Outcome, error) {
	key := Key(scope, transcript, message)

	if text, ok := c.lookup(ctx, key); ok {
		return text, OutcomeCached, nil
	}

	// The flight ignores any one caller's cancellation; each caller stops
	// waiting when its own ctx is done.
	flightCtx := context.WithoutCancel(ctx)
	leader := false
	ch := c.group.DoChan(key, func() (interface{}, error) {
		leader = true
		// another caller may have stored it while we waited for the flight
		if text, ok := c.lookup(flightCtx, key); ok {
			return result{text: text, outcome: OutcomeCached}, nil
		}

		text, err := generate(flightCtx)
		if err != nil {
			return nil, err
		}

		if err := c.store.Set(flightCtx, key, text, c.ttl); err != nil {
			c.logger.Warn("response cache write failed",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return result{text: text, outcome: OutcomeGenerated}, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return "", "", ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return "", "", res.Err
	}

	r := res.Val.(result)
	if !leader {
		// followers reuse the leader's generation
		return r.text, OutcomeCached, nil
	}
	return r.text, r.outcome, nil
}

type result struct {
	text    string
	outcome Outcome
}

func (c *ResponseCache) lookup(ctx context.Context, key string) (string, bool) {
	text, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("response cache read failed",
			zap.String("key", key),
			zap.Error(services.WrapError(services.ErrorTypeInternal, "cache read", err)),
		)
		return "", false
	}
	return text, ok
}
