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

package redis_db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the client for the single Redis instance deployed next to
// the bot. The cache layer and the notification queue both ride on it.
type Redis struct {
	address string
	client  redis.UniversalClient
}

// ParseRedisURL parses a Redis address into client options. It accepts
// both docker-style addresses (redis:6379) and redis:// URLs with
// credentials.
func ParseRedisURL(rawURL string) (*redis.Options, error) {
	// Don't modify docker-style addresses (e.g. redis:6379)
	if strings.Count(rawURL, ":") == 1 && !strings.Contains(rawURL, "@") && !strings.Contains(rawURL, "//") {
		return &redis.Options{
			Addr: rawURL,
		}, nil
	}

	if !strings.Contains(rawURL, "//") {
		rawURL = fmt.Sprintf("redis://%s", rawURL)
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return opts, nil
}

// NewRedisClient creates a Redis client from the configured address and
// verifies the connection with a short ping.
func NewRedisClient(address string) (*Redis, error) {
	if address == "" {
		return nil, errors.New("redis address cannot be empty")
	}

	opts, err := ParseRedisURL(address)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err = client.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	return &Redis{address: address, client: client}, nil
}

// Client returns the Redis universal client for direct operations.
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

// MakeRedisClient returns the client as an interface, for compatibility
// with asynq's RedisConnOpt plumbing.
func (r *Redis) MakeRedisClient() interface{} {
	return r.client
}
