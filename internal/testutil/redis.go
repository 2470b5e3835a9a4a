//go:build integration || e2e

package testutil

import (
	"context"
	"testing"

	"github.com/go-redis/redis/v8"
)

// PropertyCacheClient returns a raw Redis client against the property
// cache's test database, for assertions the propertycache package's own
// public API doesn't expose (e.g. checking a field was actually removed).
func PropertyCacheClient(t *testing.T, db int) *redis.Client {
	t.Helper()
	addr := RedisAddr()
	if addr == "" {
		t.Fatal("test Redis not available")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	t.Cleanup(func() { client.Close() })
	return client
}

// HashFieldCount returns the number of fields in a Redis hash, for
// asserting on the property cache's on-disk shape directly.
func HashFieldCount(t *testing.T, client *redis.Client, key string) int {
	t.Helper()
	n, err := client.HLen(context.Background(), key).Result()
	if err != nil {
		t.Fatalf("HLen %s: %v", key, err)
	}
	return int(n)
}
