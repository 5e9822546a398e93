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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/netplayhub/hubsync/internal/apierror"
	"github.com/netplayhub/hubsync/model"
)

const ticketColumns = `ticket_id, protocol, remote_protocol, client_ref, subject, description,
	remote_status, sync_status, sync_attempts, sync_error, flagged_for_review, last_sync_attempt, created_at`

// RecordTicket persists a new local ticket. The ticket keeps its
// caller-assigned protocol; a duplicate protocol is a conflict, never a
// silent overwrite.
func (d Datasource) RecordTicket(ctx context.Context, tkt *model.Ticket) (*model.Ticket, error) {
	if tkt.TicketID == "" {
		tkt.TicketID = GenerateUUIDWithSuffix("tkt")
	}
	if tkt.CreatedAt.IsZero() {
		tkt.CreatedAt = time.Now()
	}
	if tkt.SyncStatus == "" {
		tkt.SyncStatus = model.StatusPending
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO tickets (ticket_id, protocol, remote_protocol, client_ref, subject, description, remote_status, sync_status, sync_attempts, sync_error, flagged_for_review, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, tkt.TicketID, tkt.Protocol, newNullString(tkt.RemoteProtocol), tkt.ClientRef, tkt.Subject, tkt.Description,
		newNullString(tkt.RemoteStatus), tkt.SyncStatus, tkt.SyncAttempts, newNullString(tkt.SyncError), tkt.FlaggedForReview, tkt.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("Ticket with protocol '%s' already exists", tkt.Protocol), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record ticket", err)
	}
	return tkt, nil
}

// GetTicketByProtocol resolves either identifier the customer may
// hold: the locally issued protocol or the HubSoft one.
func (d Datasource) GetTicketByProtocol(ctx context.Context, protocol string) (*model.Ticket, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE protocol = $1 OR remote_protocol = $1
	`, protocol)

	tkt, err := scanTicket(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound,
				fmt.Sprintf("Ticket with protocol '%s' not found", protocol), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ticket", err)
	}
	return tkt, nil
}

// GetPendingTickets returns unsynced tickets oldest first, so the
// reconciliation drain preserves creation order. Failed tickets stay
// in the rotation alongside pending ones; only a successful handoff
// removes a ticket from the drain.
func (d Datasource) GetPendingTickets(ctx context.Context, limit int) ([]*model.Ticket, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE sync_status IN ($1, $2)
		ORDER BY created_at ASC
		LIMIT $3
	`, model.StatusPending, model.StatusFailed, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve pending tickets", err)
	}
	defer func() { _ = rows.Close() }()

	var tickets []*model.Ticket
	for rows.Next() {
		tkt, err := scanTicket(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan ticket", err)
		}
		tickets = append(tickets, tkt)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve pending tickets", err)
	}
	return tickets, nil
}

// MarkTicketSynced records a successful handoff: the remote protocol
// lands next to the local one and the sync error is cleared. The guard
// on sync_status keeps a concurrent double-sync from rewriting a
// ticket that already made it across.
func (d Datasource) MarkTicketSynced(ctx context.Context, ticketID, remoteProtocol, remoteStatus string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE tickets
		SET remote_protocol = $2, remote_status = $3, sync_status = $4, sync_error = NULL, last_sync_attempt = $5
		WHERE ticket_id = $1 AND sync_status != $4
	`, ticketID, remoteProtocol, newNullString(remoteStatus), model.StatusSynced, time.Now())
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark ticket synced", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark ticket synced", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound,
			fmt.Sprintf("Ticket '%s' not found or already synced", ticketID), nil)
	}
	return nil
}

// RecordSyncFailure moves a ticket to the failed state, bumps the
// attempt counter and stores the failure reason. A failed ticket is
// still picked up by GetPendingTickets on the next cycle. It returns
// the new attempt count so the caller can decide when the ticket
// needs a human.
func (d Datasource) RecordSyncFailure(ctx context.Context, ticketID, reason string) (int, error) {
	var attempts int
	err := d.Conn.QueryRowContext(ctx, `
		UPDATE tickets
		SET sync_status = $4, sync_attempts = sync_attempts + 1, sync_error = $2, last_sync_attempt = $3
		WHERE ticket_id = $1
		RETURNING sync_attempts
	`, ticketID, reason, time.Now(), model.StatusFailed).Scan(&attempts)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, apierror.NewAPIError(apierror.ErrNotFound,
				fmt.Sprintf("Ticket with ID '%s' not found", ticketID), err)
		}
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record sync failure", err)
	}
	return attempts, nil
}

// FlagTicketForReview marks a ticket for manual admin attention. The
// flag is a notification marker only: the ticket keeps its failed
// status and stays eligible for reconciliation until it syncs.
func (d Datasource) FlagTicketForReview(ctx context.Context, ticketID string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE tickets
		SET flagged_for_review = TRUE
		WHERE ticket_id = $1
	`, ticketID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to flag ticket", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to flag ticket", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound,
			fmt.Sprintf("Ticket with ID '%s' not found", ticketID), nil)
	}
	return nil
}

// GetOpenRemoteProtocols lists remote protocols of synced tickets that
// HubSoft has not closed yet. Batch status refresh walks this set in
// pages.
func (d Datasource) GetOpenRemoteProtocols(ctx context.Context, limit, offset int) ([]string, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT remote_protocol
		FROM tickets
		WHERE sync_status = $1
		  AND remote_protocol IS NOT NULL
		  AND (remote_status IS NULL OR remote_status NOT IN ('closed', 'resolved'))
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, model.StatusSynced, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve open protocols", err)
	}
	defer func() { _ = rows.Close() }()

	var protocols []string
	for rows.Next() {
		var protocol string
		if err := rows.Scan(&protocol); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan protocol", err)
		}
		protocols = append(protocols, protocol)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve open protocols", err)
	}
	return protocols, nil
}

// UpdateRemoteStatuses applies a batch of status changes keyed by
// remote protocol inside one transaction.
func (d Datasource) UpdateRemoteStatuses(ctx context.Context, statuses map[string]string) error {
	if len(statuses) == 0 {
		return nil
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin status update", err)
	}

	for protocol, status := range statuses {
		if _, err := tx.ExecContext(ctx, `
			UPDATE tickets SET remote_status = $2 WHERE remote_protocol = $1
		`, protocol, status); err != nil {
			_ = tx.Rollback()
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update ticket statuses", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit status updates", err)
	}
	return nil
}

// CountTicketsBySyncStatus reports how many tickets sit in each sync
// state. Exposed on the health surface.
func (d Datasource) CountTicketsBySyncStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT sync_status, COUNT(*) FROM tickets GROUP BY sync_status
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count tickets", err)
	}
	defer func() { _ = rows.Close() }()

	counts := map[string]int64{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan ticket counts", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count tickets", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(row rowScanner) (*model.Ticket, error) {
	tkt := &model.Ticket{}
	var remoteProtocol, remoteStatus, syncError sql.NullString
	var lastSyncAttempt sql.NullTime

	err := row.Scan(&tkt.TicketID, &tkt.Protocol, &remoteProtocol, &tkt.ClientRef, &tkt.Subject, &tkt.Description,
		&remoteStatus, &tkt.SyncStatus, &tkt.SyncAttempts, &syncError, &tkt.FlaggedForReview, &lastSyncAttempt, &tkt.CreatedAt)
	if err != nil {
		return nil, err
	}

	tkt.RemoteProtocol = remoteProtocol.String
	tkt.RemoteStatus = remoteStatus.String
	tkt.SyncError = syncError.String
	if lastSyncAttempt.Valid {
		tkt.LastSyncAttempt = &lastSyncAttempt.Time
	}
	return tkt, nil
}

func newNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
