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

// Package hubsync keeps a Telegram-facing ISP community bot useful
// while its HubSoft ERP is slow, throttled or down: every ERP call
// goes through a cached, token-managed, rate-limited client, and every
// support ticket is durable locally before the ERP ever sees it.
package hubsync

import (
	"embed"

	"github.com/redis/go-redis/v9"

	"github.com/netplayhub/hubsync/config"
	"github.com/netplayhub/hubsync/database"
	"github.com/netplayhub/hubsync/hubsoft"
	"github.com/netplayhub/hubsync/internal/cache"
	redis_db "github.com/netplayhub/hubsync/internal/redis-db"
	"github.com/netplayhub/hubsync/model"
)

// Hubsync is the application aggregate: the local ticket store, the
// HubSoft client stack, the shared reachability state and the
// notification queue.
type Hubsync struct {
	datasource database.IDataSource
	erp        *hubsoft.ApiClient
	cache      cache.Cache
	queue      *Queue
	health     *model.HealthState
	redis      redis.UniversalClient

	flagAfterCycles int
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewHubsync wires the service from configuration and the provided
// datasource. The Redis connection is shared between the response
// cache and the notification queue.
func NewHubsync(db database.IDataSource) (*Hubsync, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	redisClient, err := redis_db.NewRedisClient(configuration.Redis.Dns)
	if err != nil {
		return nil, err
	}

	responseCache := cache.NewCacheWithClient(redisClient, configuration)
	flagAfter := configuration.Monitor.FlagAfterCycles

	return &Hubsync{
		datasource:      db,
		erp:             hubsoft.NewApiClient(configuration, responseCache),
		cache:           responseCache,
		queue:           NewQueue(configuration),
		health:          model.NewHealthState(),
		redis:           redisClient.Client(),
		flagAfterCycles: flagAfter,
	}, nil
}

// NewHubsyncWith assembles an aggregate from pre-built parts. Used in
// tests to substitute fakes for individual layers.
func NewHubsyncWith(db database.IDataSource, erp *hubsoft.ApiClient, responseCache cache.Cache, queue *Queue, flagAfterCycles int) *Hubsync {
	return &Hubsync{
		datasource:      db,
		erp:             erp,
		cache:           responseCache,
		queue:           queue,
		health:          model.NewHealthState(),
		flagAfterCycles: flagAfterCycles,
	}
}

// Health returns a snapshot of ERP reachability as last observed by
// the monitor.
func (h *Hubsync) Health() model.IntegrationHealth {
	return h.health.Snapshot()
}

// CacheStats exposes the per-category cache counters.
func (h *Hubsync) CacheStats() map[cache.Category]cache.Stats {
	return h.cache.Stats()
}

// Close releases the outbound request queue.
func (h *Hubsync) Close() {
	h.erp.Close()
}
