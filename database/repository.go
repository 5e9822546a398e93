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

package database

import (
	"context"

	"github.com/netplayhub/hubsync/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	ticket    // Interface for local ticket store operations
	migration // Interface for migration ledger operations
}

// ticket defines methods for the local ticket store.
type ticket interface {
	RecordTicket(ctx context.Context, tkt *model.Ticket) (*model.Ticket, error)                     // Persists a new local ticket
	GetTicketByProtocol(ctx context.Context, protocol string) (*model.Ticket, error)                // Retrieves a ticket by local or remote protocol
	GetPendingTickets(ctx context.Context, limit int) ([]*model.Ticket, error)                      // Retrieves unsynced tickets, oldest first
	MarkTicketSynced(ctx context.Context, ticketID, remoteProtocol, remoteStatus string) error      // Records a successful handoff to HubSoft
	RecordSyncFailure(ctx context.Context, ticketID, reason string) (int, error)                    // Records a failed sync attempt, returns the attempt count
	FlagTicketForReview(ctx context.Context, ticketID string) error                                 // Marks a ticket for manual admin attention
	GetOpenRemoteProtocols(ctx context.Context, limit, offset int) ([]string, error)                // Lists remote protocols of synced, still-open tickets
	UpdateRemoteStatuses(ctx context.Context, statuses map[string]string) error                     // Applies a batch of remote status changes
	CountTicketsBySyncStatus(ctx context.Context) (map[string]int64, error)                         // Counts tickets per sync state
}

// migration defines methods for the migration ledger and integrity counts.
type migration interface {
	RecordMigration(ctx context.Context, record *model.MigrationRecord) error // Appends a ledger entry
	MarkMigrationRolledBack(ctx context.Context, version string) error        // Flags a ledger entry as rolled back
	GetMigrationRecords(ctx context.Context) ([]model.MigrationRecord, error) // Lists ledger entries, newest first
	CountRows(ctx context.Context, table string) (int64, error)               // Counts rows of a critical table
}
