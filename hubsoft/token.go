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
	"sync"
	"time"

	"github.com/netplayhub/hubsync/internal/apierror"
	"github.com/netplayhub/hubsync/model"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Authenticator acquires a fresh token from the ERP auth endpoint.
type Authenticator interface {
	Authenticate(ctx context.Context) (*model.Token, error)
}

// TokenManager owns the HubSoft access token. It hands out the cached
// token while it is comfortably inside its lifetime and renews it
// otherwise. Concurrent callers hitting a renewal converge on a single
// in-flight auth call.
type TokenManager struct {
	auth   Authenticator
	buffer time.Duration

	mu    sync.RWMutex
	token *model.Token

	group singleflight.Group
}

func NewTokenManager(auth Authenticator, renewalBuffer time.Duration) *TokenManager {
	return &TokenManager{
		auth:   auth,
		buffer: renewalBuffer,
	}
}

// GetToken returns a valid bearer token, renewing it first when the
// cached one is missing, expired or inside the renewal buffer.
func (m *TokenManager) GetToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	if token.Valid(m.buffer) {
		return token.AccessToken, nil
	}

	value, err, _ := m.group.Do("renew", func() (interface{}, error) {
		// Another caller may have finished a renewal while this one
		// waited on the flight group.
		m.mu.RLock()
		current := m.token
		m.mu.RUnlock()
		if current.Valid(m.buffer) {
			return current.AccessToken, nil
		}

		fresh, err := m.auth.Authenticate(ctx)
		if err != nil {
			return nil, err
		}
		logrus.Infof("hubsoft token renewed, expires at %s", fresh.ExpiresAt.Format(time.RFC3339))

		m.mu.Lock()
		m.token = fresh
		m.mu.Unlock()
		return fresh.AccessToken, nil
	})
	if err != nil {
		if apierror.Is(err, apierror.ErrAuthFailed) {
			return "", err
		}
		return "", apierror.NewAPIError(apierror.ErrAuthFailed, "hubsoft token renewal failed", err)
	}
	return value.(string), nil
}

// Invalidate discards the cached token so the next GetToken renews.
// Called after the ERP rejects a request as unauthorized.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()
}
