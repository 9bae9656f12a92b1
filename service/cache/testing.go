package cache

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

func testRedisURL() string {
	if u := os.Getenv("TEST_REDIS_URL"); u != "" {
		return u
	}
	return "redis://localhost:6379/15"
}

// SkipIfNoRedis skips the test if the test Redis is not available.
// This is useful for running unit tests without requiring Redis.
func SkipIfNoRedis(t *testing.T) {
	t.Helper()

	if os.Getenv("SKIP_REDIS_TESTS") != "" {
		t.Skip("Skipping redis test (SKIP_REDIS_TESTS is set)")
	}

	opts, err := redis.ParseURL(testRedisURL())
	if err != nil {
		t.Skipf("Skipping redis test: invalid TEST_REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Skipping redis test: cannot ping test redis: %v", err)
	}
}

// NewTestMintCache connects to the test Redis under a per-test hash key and
// removes the key when the test ends.
func NewTestMintCache(t *testing.T) *MintCache {
	t.Helper()

	opts, err := redis.ParseURL(testRedisURL())
	if err != nil {
		t.Fatalf("failed to parse test redis url: %v", err)
	}
	rdb := redis.NewClient(opts)
	key := "soldrop:test:" + t.Name()

	t.Cleanup(func() {
		rdb.Del(context.Background(), key)
		rdb.Close()
	})
	return NewMintCache(rdb, key)
}
