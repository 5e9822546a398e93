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

import (
	"sync"
	"time"
)

// IntegrationHealth is a point-in-time view of HubSoft reachability.
type IntegrationHealth struct {
	IsOnline         bool      `json:"is_online"`
	LastCheckedAt    time.Time `json:"last_checked_at"`
	LastTransitionAt time.Time `json:"last_transition_at"`
}

// HealthState is the shared, read-mostly reachability state. The
// monitor is the only writer; the sync service reads it to choose the
// online or offline path for ticket creation.
type HealthState struct {
	mu     sync.RWMutex
	health IntegrationHealth
}

// NewHealthState starts offline; the first successful health check
// flips it online.
func NewHealthState() *HealthState {
	return &HealthState{}
}

// Record stores the result of a health check and reports whether it
// caused an online/offline transition.
func (h *HealthState) Record(online bool, at time.Time) (transitioned bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	transitioned = h.health.IsOnline != online
	h.health.IsOnline = online
	h.health.LastCheckedAt = at
	if transitioned {
		h.health.LastTransitionAt = at
	}
	return transitioned
}

// IsOnline reports the last observed reachability.
func (h *HealthState) IsOnline() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.health.IsOnline
}

// Snapshot returns a copy of the current health view.
func (h *HealthState) Snapshot() IntegrationHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.health
}
