/*
Copyright 2024 NetPlay Hub Authors.

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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/netplayhub/hubsync/config"
	redis_db "github.com/netplayhub/hubsync/internal/redis-db"
)

// Category partitions cached HubSoft responses. Each category carries
// its own TTL, supplied by configuration rather than per call site.
type Category string

const (
	CategoryClientLookup   Category = "client_lookup"
	CategoryContractStatus Category = "contract_status"
	CategoryServiceData    Category = "service_data"
)

// Stats holds per-category observability counters.
type Stats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Invalidations uint64 `json:"invalidations"`
}

// Cache is the response cache consulted before every HubSoft call.
// A miss never blocks on the network; it only signals the caller to go
// to the ERP.
type Cache interface {
	// Get retrieves a cached value for (category, key) into data.
	// Returns false on a miss. Never returns a stale entry: TTL expiry
	// is enforced by the underlying store on read.
	Get(ctx context.Context, category Category, key string, data interface{}) (bool, error)

	// Set stores a value under (category, key) with the category's TTL.
	Set(ctx context.Context, category Category, key string, value interface{}) error

	// Invalidate drops a single entry, or the whole category when key
	// is empty.
	Invalidate(ctx context.Context, category Category, key string) error

	// Stats returns a snapshot of the per-category counters.
	Stats() map[Category]Stats

	// TTL reports the configured time-to-live for a category.
	TTL(category Category) time.Duration
}

// cacheSize caps the local in-process cache (number of entries) used
// alongside Redis, keeping total entries bounded under pressure.
const cacheSize = 32000

type categoryCounters struct {
	hits          atomic.Uint64
	misses        atomic.Uint64
	invalidations atomic.Uint64
}

// RedisCache implements Cache over Redis with a TinyLFU local layer.
// Category-wide invalidation is done with a generation counter baked
// into every key, so dropping a category is O(1).
type RedisCache struct {
	cache *cache.Cache
	ttls  map[Category]time.Duration

	mu          sync.Mutex
	generations map[Category]uint64
	counters    map[Category]*categoryCounters
}

// NewCache creates the HubSoft response cache from the application
// configuration.
func NewCache() (Cache, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	client, err := redis_db.NewRedisClient(cfg.Redis.Dns)
	if err != nil {
		return nil, err
	}

	return newRedisCache(client, cfg), nil
}

// NewCacheWithClient builds the cache on an existing Redis connection.
// Used by the service aggregate, which shares one connection between
// the cache and the notification queue.
func NewCacheWithClient(client *redis_db.Redis, cfg *config.Configuration) Cache {
	return newRedisCache(client, cfg)
}

func newRedisCache(client *redis_db.Redis, cfg *config.Configuration) *RedisCache {
	c := cache.New(&cache.Options{
		Redis:      client.Client(),
		LocalCache: cache.NewTinyLFU(cacheSize, time.Minute),
	})

	ttls := map[Category]time.Duration{
		CategoryClientLookup:   time.Duration(cfg.CacheTTL.ClientLookupMin) * time.Minute,
		CategoryContractStatus: time.Duration(cfg.CacheTTL.ContractStatusMin) * time.Minute,
		CategoryServiceData:    time.Duration(cfg.CacheTTL.ServiceDataMin) * time.Minute,
	}

	return &RedisCache{
		cache:       c,
		ttls:        ttls,
		generations: make(map[Category]uint64),
		counters:    make(map[Category]*categoryCounters),
	}
}

func (r *RedisCache) key(category Category, key string) string {
	r.mu.Lock()
	gen := r.generations[category]
	r.mu.Unlock()
	return fmt.Sprintf("hubsync:%s:%d:%s", category, gen, key)
}

func (r *RedisCache) counter(category Category) *categoryCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[category]
	if !ok {
		c = &categoryCounters{}
		r.counters[category] = c
	}
	return c
}

func (r *RedisCache) Get(ctx context.Context, category Category, key string, data interface{}) (bool, error) {
	err := r.cache.Get(ctx, r.key(category, key), data)
	if errors.Is(err, cache.ErrCacheMiss) {
		r.counter(category).misses.Add(1)
		return false, nil
	}
	if err != nil {
		// Redis trouble counts as a miss; the cache is an optimization,
		// not a correctness boundary.
		r.counter(category).misses.Add(1)
		return false, nil
	}
	r.counter(category).hits.Add(1)
	return true, nil
}

func (r *RedisCache) Set(ctx context.Context, category Category, key string, value interface{}) error {
	return r.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   r.key(category, key),
		Value: value,
		TTL:   r.TTL(category),
	})
}

func (r *RedisCache) Invalidate(ctx context.Context, category Category, key string) error {
	r.counter(category).invalidations.Add(1)
	if key != "" {
		return r.cache.Delete(ctx, r.key(category, key))
	}

	// Bump the generation: every existing key in the category becomes
	// unreachable and ages out via TTL.
	r.mu.Lock()
	r.generations[category]++
	r.mu.Unlock()
	return nil
}

func (r *RedisCache) Stats() map[Category]Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[Category]Stats, len(r.counters))
	for category, c := range r.counters {
		out[category] = Stats{
			Hits:          c.hits.Load(),
			Misses:        c.misses.Load(),
			Invalidations: c.invalidations.Load(),
		}
	}
	return out
}

func (r *RedisCache) TTL(category Category) time.Duration {
	if ttl, ok := r.ttls[category]; ok && ttl > 0 {
		return ttl
	}
	return 30 * time.Minute
}
