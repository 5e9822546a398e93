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
	"sync/atomic"
	"testing"
	"time"

	"github.com/netplayhub/hubsync/internal/apierror"
	"github.com/netplayhub/hubsync/model"
	"github.com/stretchr/testify/assert"
)

type fakeAuthenticator struct {
	calls atomic.Int64
	delay time.Duration
	err   error
	ttl   time.Duration
}

func (f *fakeAuthenticator) Authenticate(_ context.Context) (*model.Token, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	ttl := f.ttl
	if ttl == 0 {
		ttl = time.Hour
	}
	return &model.Token{AccessToken: "token-abc", ExpiresAt: time.Now().Add(ttl)}, nil
}

func TestGetTokenCachesUntilBuffer(t *testing.T) {
	auth := &fakeAuthenticator{}
	m := NewTokenManager(auth, 5*time.Minute)

	token, err := m.GetToken(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "token-abc", token)

	_, err = m.GetToken(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(1), auth.calls.Load(), "cached token must be reused")
}

func TestGetTokenRenewsInsideBuffer(t *testing.T) {
	// Token expires in 2 minutes with a 5-minute buffer: every call is
	// a renewal.
	auth := &fakeAuthenticator{ttl: 2 * time.Minute}
	m := NewTokenManager(auth, 5*time.Minute)

	_, err := m.GetToken(context.Background())
	assert.NoError(t, err)
	_, err = m.GetToken(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(2), auth.calls.Load())
}

func TestConcurrentGetTokenSingleRenewal(t *testing.T) {
	auth := &fakeAuthenticator{delay: 50 * time.Millisecond}
	m := NewTokenManager(auth, 5*time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := m.GetToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "token-abc", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), auth.calls.Load(), "concurrent callers must share one renewal")
}

func TestInvalidateForcesRenewal(t *testing.T) {
	auth := &fakeAuthenticator{}
	m := NewTokenManager(auth, 5*time.Minute)

	_, err := m.GetToken(context.Background())
	assert.NoError(t, err)

	m.Invalidate()

	_, err = m.GetToken(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(2), auth.calls.Load())
}

func TestGetTokenRenewalFailure(t *testing.T) {
	auth := &fakeAuthenticator{err: apierror.NewAPIError(apierror.ErrAuthFailed, "bad credentials", nil)}
	m := NewTokenManager(auth, 5*time.Minute)

	_, err := m.GetToken(context.Background())
	assert.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.ErrAuthFailed))
}
