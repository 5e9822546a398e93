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
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/cache/v9"
	"github.com/netplayhub/hubsync/config"
	redis_db "github.com/netplayhub/hubsync/internal/redis-db"
	"github.com/stretchr/testify/assert"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := redis_db.NewRedisClient(mr.Addr())
	assert.NoError(t, err)

	cfg := &config.Configuration{}
	config.MockConfig(cfg)

	return newRedisCache(client, cfg), mr
}

func TestSetAndGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	setValue := map[string]string{"client": "12345"}
	err := c.Set(ctx, CategoryClientLookup, "cpf:99988877766", setValue)
	assert.NoError(t, err)

	var getValue map[string]string
	hit, err := c.Get(ctx, CategoryClientLookup, "cpf:99988877766", &getValue)
	assert.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, setValue, getValue)
}

func TestGetMiss(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var getValue map[string]string
	hit, err := c.Get(ctx, CategoryClientLookup, "nonExistentKey", &getValue)
	assert.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, getValue)
}

func TestCategoriesAreIsolated(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	err := c.Set(ctx, CategoryClientLookup, "key", "client-value")
	assert.NoError(t, err)

	var getValue string
	hit, err := c.Get(ctx, CategoryContractStatus, "key", &getValue)
	assert.NoError(t, err)
	assert.False(t, hit, "same key in another category must miss")
}

func TestTTLExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := redis_db.NewRedisClient(mr.Addr())
	assert.NoError(t, err)

	cfg := &config.Configuration{}
	config.MockConfig(cfg)

	ctx := context.Background()
	c := newRedisCache(client, cfg)
	assert.NoError(t, c.Set(ctx, CategoryServiceData, "plan:42", "100mbps"))

	// Past the service-data TTL the entry must be gone in redis. A
	// fresh cache instance (empty local layer) observes the expiry.
	mr.FastForward(c.TTL(CategoryServiceData) + time.Minute)
	fresh := newRedisCache(client, cfg)

	var getValue string
	hit, err := fresh.Get(ctx, CategoryServiceData, "plan:42", &getValue)
	assert.NoError(t, err)
	assert.False(t, hit)
}

func TestInvalidateSingleKey(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	assert.NoError(t, c.Set(ctx, CategoryContractStatus, "contract:7", "active"))
	assert.NoError(t, c.Invalidate(ctx, CategoryContractStatus, "contract:7"))

	var getValue string
	hit, err := c.Get(ctx, CategoryContractStatus, "contract:7", &getValue)
	assert.NoError(t, err)
	assert.False(t, hit)
}

func TestInvalidateWholeCategory(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	assert.NoError(t, c.Set(ctx, CategoryClientLookup, "a", "1"))
	assert.NoError(t, c.Set(ctx, CategoryClientLookup, "b", "2"))
	assert.NoError(t, c.Set(ctx, CategoryServiceData, "c", "3"))

	assert.NoError(t, c.Invalidate(ctx, CategoryClientLookup, ""))

	var getValue string
	hit, _ := c.Get(ctx, CategoryClientLookup, "a", &getValue)
	assert.False(t, hit)
	hit, _ = c.Get(ctx, CategoryClientLookup, "b", &getValue)
	assert.False(t, hit)

	// Other categories are untouched.
	hit, _ = c.Get(ctx, CategoryServiceData, "c", &getValue)
	assert.True(t, hit)
}

func TestStats(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	assert.NoError(t, c.Set(ctx, CategoryClientLookup, "k", "v"))

	var getValue string
	hit, _ := c.Get(ctx, CategoryClientLookup, "k", &getValue)
	assert.True(t, hit)
	hit, _ = c.Get(ctx, CategoryClientLookup, "missing", &getValue)
	assert.False(t, hit)
	assert.NoError(t, c.Invalidate(ctx, CategoryClientLookup, "k"))

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats[CategoryClientLookup].Hits)
	assert.Equal(t, uint64(1), stats[CategoryClientLookup].Misses)
	assert.Equal(t, uint64(1), stats[CategoryClientLookup].Invalidations)
}

func TestConfiguredTTLs(t *testing.T) {
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := redis_db.NewRedisClient(mr.Addr())
	assert.NoError(t, err)

	cfg := &config.Configuration{}
	config.MockConfig(cfg)
	c := newRedisCache(client, cfg)

	assert.Equal(t, 30*time.Minute, c.TTL(CategoryClientLookup))
	assert.Equal(t, 4*time.Hour, c.TTL(CategoryContractStatus))
	assert.Equal(t, time.Hour, c.TTL(CategoryServiceData))
	assert.Equal(t, 30*time.Minute, c.TTL(Category("unknown")))
}

func TestLocalLayerHonorsEntryCap(t *testing.T) {
	// The TinyLFU layer alone enforces the entry cap; Redis entries age
	// out via TTL. Run it local-only so evictions are observable.
	const localCap = 64
	c := &RedisCache{
		cache: cache.New(&cache.Options{
			LocalCache: cache.NewTinyLFU(localCap, time.Minute),
		}),
		ttls:        map[Category]time.Duration{CategoryClientLookup: time.Minute},
		generations: make(map[Category]uint64),
		counters:    make(map[Category]*categoryCounters),
	}
	ctx := context.Background()

	for i := 0; i < 4*localCap; i++ {
		err := c.Set(ctx, CategoryClientLookup, fmt.Sprintf("cpf:%05d", i), i)
		assert.NoError(t, err)
	}

	retrievable := 0
	for i := 0; i < 4*localCap; i++ {
		var v int
		hit, err := c.Get(ctx, CategoryClientLookup, fmt.Sprintf("cpf:%05d", i), &v)
		assert.NoError(t, err)
		if hit {
			retrievable++
		}
	}
	assert.LessOrEqual(t, retrievable, localCap)
}
