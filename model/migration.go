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

// MigrationRecord is one entry in the append-only migration ledger.
// Pre and post row counts cover the configured critical tables; a
// rolled-back migration keeps its entry with RolledBack set.
type MigrationRecord struct {
	Version    string           `json:"version"`
	AppliedAt  time.Time        `json:"applied_at"`
	PreCounts  map[string]int64 `json:"pre_counts"`
	PostCounts map[string]int64 `json:"post_counts"`
	RolledBack bool             `json:"rolled_back"`
}
