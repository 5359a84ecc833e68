// Package cache wraps a shared Redis instance with typed JSON encode/decode,
// TTL, and the canonical key-derivation algorithm used by the probe and
// result caches.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"videopipe/internal/apierrors"

	"github.com/redis/go-redis/v9"
)

// Cache is a typed key/value store with TTL over Redis.
type Cache struct {
	rdb *redis.Client
}

// New wraps an existing redis.Client.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// NewFromURL parses redisURL and opens a connection.
func NewFromURL(redisURL string) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	return &Cache{rdb: redis.NewClient(opts)}, nil
}

// Client exposes the underlying redis.Client for components (the durable
// queue) that need direct access to sorted sets and hashes.
func (c *Cache) Client() *redis.Client { return c.rdb }

// Set JSON-encodes value and stores it under key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
		return apierrors.NewTransient(err, "cache set %s", key)
	}
	return nil
}

// ErrMiss is returned by Get when key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Get decodes the value stored at key into dest. Returns ErrMiss on a cache
// miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return apierrors.NewTransient(err, "cache get %s", key)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("cache: unmarshal %s: %w", key, err)
	}
	return nil
}

// Delete removes key, if present.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return apierrors.NewTransient(err, "cache delete %s", key)
	}
	return nil
}

// Exists reports whether key is currently set.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, apierrors.NewTransient(err, "cache exists %s", key)
	}
	return n > 0, nil
}

// DeriveKey implements the canonical key derivation from spec.md §4.2:
// prefix + ":" + hex(md5(canonical(params))), where canonical sorts map
// keys lexicographically and joins as k=v&….
func DeriveKey(prefix string, params map[string]string) string {
	return prefix + ":" + hexMD5(canonical(params))
}

func canonical(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, "&")
}

func hexMD5(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SortedIDs formats a slice of ids as a sorted, comma-joined string, the
// canonical form required for "ids participating in a set are sorted before
// canonicalization".
func SortedIDs(ids []int64) string {
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
