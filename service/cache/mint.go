// Package cache stores mint metadata in Redis so repeated token discovery
// does not re-read mint accounts from the ledger.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
)

// DefaultHashKey is the Redis hash holding mint -> decimals.
const DefaultHashKey = "soldrop:mint_decimals"

// MintCache is a Redis-backed cache of mint decimals. Decimals are immutable
// once a mint is initialized, so entries never expire.
type MintCache struct {
	rdb     *redis.Client
	hashKey string
}

// NewMintCache wraps an existing client.
func NewMintCache(rdb *redis.Client, hashKey string) *MintCache {
	if hashKey == "" {
		hashKey = DefaultHashKey
	}
	return &MintCache{rdb: rdb, hashKey: hashKey}
}

// Connect parses a redis:// URL, pings the server and returns a cache.
func Connect(ctx context.Context, redisURL string) (*MintCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewMintCache(rdb, ""), nil
}

// GetDecimals returns the cached decimals of mint. ok is false on a miss.
func (c *MintCache) GetDecimals(ctx context.Context, mint solana.PublicKey) (uint8, bool, error) {
	val, err := c.rdb.HGet(ctx, c.hashKey, mint.String()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read mint %s from cache: %w", mint, err)
	}
	d, err := strconv.ParseUint(val, 10, 8)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cache entry for mint %s: %w", mint, err)
	}
	return uint8(d), true, nil
}

// SetDecimals stores the decimals of mint.
func (c *MintCache) SetDecimals(ctx context.Context, mint solana.PublicKey, decimals uint8) error {
	if err := c.rdb.HSet(ctx, c.hashKey, mint.String(), strconv.Itoa(int(decimals))).Err(); err != nil {
		return fmt.Errorf("failed to cache mint %s: %w", mint, err)
	}
	return nil
}

// Close closes the underlying client.
func (c *MintCache) Close() error {
	return c.rdb.Close()
}
