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

package hubsoft

import (
	"context"
	"time"

	"github.com/netplayhub/hubsync/config"
	"github.com/netplayhub/hubsync/internal/apierror"
	"github.com/netplayhub/hubsync/internal/cache"
)

// ApiClient is the one path to the ERP for the sync service and the
// migration engine: cache in front, then token, then the rate-limited
// call. Errors are never cached.
type ApiClient struct {
	client  *Client
	tokens  *TokenManager
	limiter *RateLimiter
	cache   cache.Cache
}

// NewApiClient wires the full client stack from configuration.
func NewApiClient(cfg *config.Configuration, responseCache cache.Cache) *ApiClient {
	client := NewClient(cfg)
	return &ApiClient{
		client:  client,
		tokens:  NewTokenManager(client, time.Duration(cfg.HubSoft.RenewalBufferMin)*time.Minute),
		limiter: NewRateLimiter(cfg),
		cache:   responseCache,
	}
}

// NewApiClientWith assembles a facade from pre-built parts. Used in
// tests to substitute fakes for individual layers.
func NewApiClientWith(client *Client, tokens *TokenManager, limiter *RateLimiter, responseCache cache.Cache) *ApiClient {
	return &ApiClient{client: client, tokens: tokens, limiter: limiter, cache: responseCache}
}

// Raw exposes the underlying client for the monitor's health ping,
// which deliberately bypasses the queue so a slow call cannot delay it.
func (a *ApiClient) Raw() *Client {
	return a.client
}

// Close shuts down the outbound request queue.
func (a *ApiClient) Close() {
	a.limiter.Close()
}

// Call is the cached read path: cache lookup first, then — on a miss —
// an admitted, authenticated call whose result lands in the cache.
// result must be a pointer; invoke must fill it via the closure.
func (a *ApiClient) Call(ctx context.Context, category cache.Category, key string, priority Priority,
	result interface{}, invoke func(ctx context.Context, token string) error) error {

	if hit, err := a.cache.Get(ctx, category, key, result); err == nil && hit {
		return nil
	}

	if err := a.Do(ctx, priority, invoke); err != nil {
		return err
	}

	if err := a.cache.Set(ctx, category, key, result); err != nil {
		// A failed cache write only costs the next caller a miss.
		return nil
	}
	return nil
}

// Do is the uncached path used for writes (ticket creation, status
// updates): token acquisition and the call itself run inside the rate
// limiter's admission.
func (a *ApiClient) Do(ctx context.Context, priority Priority, invoke func(ctx context.Context, token string) error) error {
	return a.limiter.Submit(ctx, priority, func(ctx context.Context) error {
		return a.withToken(ctx, invoke)
	})
}

// withToken supplies a bearer token and, when the ERP rejects it,
// forces one renewal and a single re-admitted retry before giving up.
func (a *ApiClient) withToken(ctx context.Context, invoke func(ctx context.Context, token string) error) error {
	token, err := a.tokens.GetToken(ctx)
	if err != nil {
		return err
	}

	err = invoke(ctx, token)
	if !apierror.Is(err, apierror.ErrAuthFailed) {
		return err
	}

	a.tokens.Invalidate()
	token, terr := a.tokens.GetToken(ctx)
	if terr != nil {
		return terr
	}
	if werr := a.limiter.Wait(ctx); werr != nil {
		return werr
	}
	return invoke(ctx, token)
}
