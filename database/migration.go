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
	"encoding/json"
	"fmt"

	"github.com/netplayhub/hubsync/internal/apierror"
	"github.com/netplayhub/hubsync/model"
)

// RecordMigration appends an entry to the migration ledger. Entries
// are never updated except to flag a rollback, so the ledger is a full
// audit trail of schema history.
func (d Datasource) RecordMigration(ctx context.Context, record *model.MigrationRecord) error {
	preJSON, err := json.Marshal(record.PreCounts)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal pre-migration counts", err)
	}
	postJSON, err := json.Marshal(record.PostCounts)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal post-migration counts", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO migration_ledger (version, applied_at, pre_counts, post_counts, rolled_back)
		VALUES ($1, $2, $3, $4, $5)
	`, record.Version, record.AppliedAt, preJSON, postJSON, record.RolledBack)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record migration", err)
	}
	return nil
}

// MarkMigrationRolledBack flags the latest ledger entry for a version.
func (d Datasource) MarkMigrationRolledBack(ctx context.Context, version string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE migration_ledger SET rolled_back = TRUE
		WHERE id = (SELECT MAX(id) FROM migration_ledger WHERE version = $1)
	`, version)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark migration rolled back", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark migration rolled back", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound,
			fmt.Sprintf("No ledger entry for migration version '%s'", version), nil)
	}
	return nil
}

// GetMigrationRecords lists ledger entries, newest first.
func (d Datasource) GetMigrationRecords(ctx context.Context) ([]model.MigrationRecord, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT version, applied_at, pre_counts, post_counts, rolled_back
		FROM migration_ledger
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve migration ledger", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.MigrationRecord
	for rows.Next() {
		var record model.MigrationRecord
		var preJSON, postJSON []byte
		if err := rows.Scan(&record.Version, &record.AppliedAt, &preJSON, &postJSON, &record.RolledBack); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan migration record", err)
		}
		if err := json.Unmarshal(preJSON, &record.PreCounts); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal pre-migration counts", err)
		}
		if err := json.Unmarshal(postJSON, &record.PostCounts); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal post-migration counts", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve migration ledger", err)
	}
	return records, nil
}

// CountRows counts the rows of one critical table. The table name
// comes from configuration, never from request input.
func (d Datasource) CountRows(ctx context.Context, table string) (int64, error) {
	var count int64
	err := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, table)).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer,
			fmt.Sprintf("Failed to count rows of table '%s'", table), err)
	}
	return count, nil
}
