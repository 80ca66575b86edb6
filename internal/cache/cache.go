/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// Cache is the read-path acceleration layer in front of the relational store.
// Callers must treat any error as a miss and fall back to the database.
type Cache interface {
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Get decodes the value stored under key into data. found is false on a miss.
	Get(ctx context.Context, key string, data interface{}) (found bool, err error)

	// Delete removes key from both the local and the redis layer.
	Delete(ctx context.Context, key string) error
}

// cacheSize is the number of entries kept in the in-process TinyLFU layer.
const cacheSize = 128000

// RedisCache layers a small in-process cache over redis.
type RedisCache struct {
	cache *cache.Cache
}

// NewRedisCache builds a two level cache on an existing redis client.
//
// Parameters:
// - client redis.UniversalClient: The redis client backing the shared level.
// - localTTL time.Duration: How stale the in-process copy may get.
//
// Returns:
// - *RedisCache: The cache.
func NewRedisCache(client redis.UniversalClient, localTTL time.Duration) *RedisCache {
	opts := &cache.Options{Redis: client}
	if localTTL > 0 {
		opts.LocalCache = cache.NewTinyLFU(cacheSize, localTTL)
	}
	return &RedisCache{cache: cache.New(opts)}
}

// Set stores data under key for ttl in both levels.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - key string: The cache key.
// - data interface{}: The value to store, encoded with msgpack.
// - ttl time.Duration: How long redis keeps the value.
//
// Returns:
// - error: An error if the value could not be stored.
func (r *RedisCache) Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	return r.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: data,
		TTL:   ttl,
	})
}

// Get decodes the value stored under key into data.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - key string: The cache key.
// - data interface{}: A pointer the value is decoded into.
//
// Returns:
// - bool: false on a cache miss.
// - error: An error other than a miss.
func (r *RedisCache) Get(ctx context.Context, key string, data interface{}) (bool, error) {
	err := r.cache.Get(ctx, key, data)
	if errors.Is(err, cache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes key from both levels.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	err := r.cache.Delete(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
