// Package cache keeps recent prediction results in Redis keyed by a
// hash of the uploaded bytes, so identical uploads skip inference.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/2024aa05820/mlops-assignment2/pkg/predictor"
)

const keyPrefix = "prediction:"

// HashContent returns the cache key material for an upload. xxhash is
// not cryptographic; collisions only risk serving a stale prediction,
// never corrupting state.
func HashContent(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// Cache is a read-through prediction cache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache wraps an existing Redis client. Entries expire after ttl;
// ttl <= 0 means no expiry.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func key(hash string) string {
	return keyPrefix + hash
}

// Get returns the cached result for a content hash. A miss surfaces
// redis.Nil; callers treat any error as a miss.
func (c *Cache) Get(ctx context.Context, hash string) (*predictor.Result, error) {
	val, err := c.client.Get(ctx, key(hash)).Bytes()
	if err != nil {
		return nil, err
	}

	var res predictor.Result
	if err := json.Unmarshal(val, &res); err != nil {
		return nil, errors.Wrap(err, "decode cached prediction")
	}
	return &res, nil
}

// Set stores a result under a content hash.
func (c *Cache) Set(ctx context.Context, hash string, res *predictor.Result) error {
	val, err := json.Marshal(res)
	if err != nil {
		return errors.Wrap(err, "encode prediction")
	}

	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, key(hash), val, ttl).Err()
}
