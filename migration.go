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

package hubsync

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"

	"github.com/netplayhub/hubsync/config"
	"github.com/netplayhub/hubsync/database"
	"github.com/netplayhub/hubsync/internal/apierror"
	"github.com/netplayhub/hubsync/internal/notification"
	"github.com/netplayhub/hubsync/model"
)

// MigrationEngine applies schema migrations one version at a time and
// verifies critical-table row counts before and after each step. A
// step that loses data beyond the configured threshold is rolled back
// on the spot, and every step lands in the append-only migration
// ledger either way.
type MigrationEngine struct {
	conn           *sql.DB
	datasource     database.IDataSource
	queue          *Queue
	source         migrate.MigrationSource
	criticalTables []string
	threshold      float64
}

func NewMigrationEngine(conn *sql.DB, ds database.IDataSource, queue *Queue, cfg *config.Configuration) *MigrationEngine {
	return &MigrationEngine{
		conn:       conn,
		datasource: ds,
		queue:      queue,
		source: migrate.EmbedFileSystemMigrationSource{
			FileSystem: SQLFiles,
			Root:       "sql",
		},
		criticalTables: cfg.Migration.CriticalTables,
		threshold:      cfg.Migration.IntegrityThreshold,
	}
}

// Up applies all outstanding migrations, stopping at the first failed
// integrity check. Returns how many versions were applied and kept.
func (e *MigrationEngine) Up(ctx context.Context) (int, error) {
	applied := 0
	for {
		planned, _, err := migrate.PlanMigration(e.conn, "postgres", e.source, migrate.Up, 1)
		if err != nil {
			return applied, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to plan migration", err)
		}
		if len(planned) == 0 {
			return applied, nil
		}
		version := planned[0].Id

		pre := e.countCritical(ctx)

		if _, err := migrate.ExecMax(e.conn, "postgres", e.source, migrate.Up, 1); err != nil {
			return applied, apierror.NewAPIError(apierror.ErrInternalServer,
				fmt.Sprintf("Migration '%s' failed", version), err)
		}
		logrus.Infof("applied migration %s", version)

		post := e.countCritical(ctx)
		record := &model.MigrationRecord{
			Version:    version,
			AppliedAt:  time.Now(),
			PreCounts:  pre,
			PostCounts: post,
		}

		if table, breached := e.integrityBreach(pre, post); breached {
			if _, derr := migrate.ExecMax(e.conn, "postgres", e.source, migrate.Down, 1); derr != nil {
				logrus.WithError(derr).Errorf("rollback of migration %s failed", version)
			}
			record.RolledBack = true
			if lerr := e.datasource.RecordMigration(ctx, record); lerr != nil {
				logrus.WithError(lerr).Error("failed to record rolled-back migration")
			}
			e.queue.QueueAdminAlert(
				fmt.Sprintf("Migration %s rolled back: table %s dropped from %d to %d rows",
					version, table, pre[table], post[table]),
				notification.SeverityCritical)
			return applied, apierror.NewAPIError(apierror.ErrDataIntegrity,
				fmt.Sprintf("Migration '%s' lost rows in critical table '%s' and was rolled back", version, table), nil)
		}

		if err := e.datasource.RecordMigration(ctx, record); err != nil {
			return applied, err
		}
		applied++
	}
}

// Down rolls back up to max applied migrations and flags their ledger
// entries.
func (e *MigrationEngine) Down(ctx context.Context, max int) (int, error) {
	planned, _, err := migrate.PlanMigration(e.conn, "postgres", e.source, migrate.Down, max)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to plan rollback", err)
	}

	n, err := migrate.ExecMax(e.conn, "postgres", e.source, migrate.Down, max)
	if err != nil {
		return n, apierror.NewAPIError(apierror.ErrInternalServer, "Rollback failed", err)
	}

	for i := 0; i < n && i < len(planned); i++ {
		if err := e.datasource.MarkMigrationRolledBack(ctx, planned[i].Id); err != nil {
			logrus.WithError(err).Errorf("failed to flag ledger entry for %s", planned[i].Id)
		}
	}
	return n, nil
}

// Ledger lists the recorded migration history, newest first.
func (e *MigrationEngine) Ledger(ctx context.Context) ([]model.MigrationRecord, error) {
	return e.datasource.GetMigrationRecords(ctx)
}

// countCritical snapshots row counts of the critical tables. A table
// that cannot be counted (e.g. not created yet) counts as zero.
func (e *MigrationEngine) countCritical(ctx context.Context) map[string]int64 {
	counts := map[string]int64{}
	for _, table := range e.criticalTables {
		count, err := e.datasource.CountRows(ctx, table)
		if err != nil {
			counts[table] = 0
			continue
		}
		counts[table] = count
	}
	return counts
}

// integrityBreach reports the first critical table whose row count
// shrank below the threshold ratio across a migration.
func (e *MigrationEngine) integrityBreach(pre, post map[string]int64) (string, bool) {
	for _, table := range e.criticalTables {
		before := pre[table]
		if before == 0 {
			continue
		}
		ratio := float64(post[table]) / float64(before)
		if ratio < e.threshold {
			return table, true
		}
	}
	return "", false
}
