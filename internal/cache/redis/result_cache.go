package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

// ResultCache implements domain.ResultCache. The latest result of every
// strategy is stored as JSON at "result:latest:{strategy}".
type ResultCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewResultCache creates a ResultCache. A zero ttl keeps entries forever.
func NewResultCache(c *Client, ttl time.Duration) *ResultCache {
	return &ResultCache{rdb: c.Underlying(), ttl: ttl}
}

func resultKey(strategy string) string {
	return "result:latest:" + strategy
}

// SetLatest overwrites the cached result for r.Strategy.
func (rc *ResultCache) SetLatest(ctx context.Context, r domain.ExecutionResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("redis: marshal result %s: %w", r.ID, err)
	}
	if err := rc.rdb.Set(ctx, resultKey(r.Strategy), data, rc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set result %s: %w", r.Strategy, err)
	}
	return nil
}

// GetLatest returns domain.ErrNotFound when nothing is cached for strategy.
func (rc *ResultCache) GetLatest(ctx context.Context, strategy string) (domain.ExecutionResult, error) {
	data, err := rc.rdb.Get(ctx, resultKey(strategy)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ExecutionResult{}, domain.ErrNotFound
		}
		return domain.ExecutionResult{}, fmt.Errorf("redis: get result %s: %w", strategy, err)
	}
	var r domain.ExecutionResult
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("redis: decode result %s: %w", strategy, err)
	}
	return r, nil
}

var _ domain.ResultCache = (*ResultCache)(nil)
