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

package model

import "time"

// Token is a HubSoft bearer token. It is owned by the token manager and
// never persisted; callers only see it for the duration of a call.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Valid reports whether the token can still be used, leaving the given
// renewal buffer before the actual expiry.
func (t *Token) Valid(buffer time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return time.Now().Before(t.ExpiresAt.Add(-buffer))
}
