package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const settlementResultKeyPrefix = "settlement:result:"

// SettlementResultCache replays settlement results for idempotent
// re-confirmations without a DB round trip. Best effort only: the database
// row stays the source of truth and every cache error is safe to ignore.
type SettlementResultCache interface {
	Get(ctx context.Context, deptRefNo string) (*IssueCertificateResult, error)
	Set(ctx context.Context, deptRefNo string, result *IssueCertificateResult) error
}

// RedisResultCache implements SettlementResultCache on redis
type RedisResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisResultCache creates a settlement result cache with the given TTL
func NewRedisResultCache(client *redis.Client, ttl time.Duration) *RedisResultCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisResultCache{client: client, ttl: ttl}
}

// Get returns the cached result, or nil on a miss
func (c *RedisResultCache) Get(ctx context.Context, deptRefNo string) (*IssueCertificateResult, error) {
	raw, err := c.client.Get(ctx, settlementResultKeyPrefix+deptRefNo).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var result IssueCertificateResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Set stores the result under the transaction's department reference number
func (c *RedisResultCache) Set(ctx context.Context, deptRefNo string, result *IssueCertificateResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, settlementResultKeyPrefix+deptRefNo, raw, c.ttl).Err()
}

// NoopResultCache is used when redis is not configured
type NoopResultCache struct{}

func (NoopResultCache) Get(ctx context.Context, deptRefNo string) (*IssueCertificateResult, error) {
	return nil, nil
}

func (NoopResultCache) Set(ctx context.Context, deptRefNo string, result *IssueCertificateResult) error {
	return nil
}
