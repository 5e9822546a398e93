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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/netplayhub/hubsync/internal/apierror"
	"github.com/netplayhub/hubsync/model"
)

func TestRecordMigration_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	record := &model.MigrationRecord{
		Version:    "002_add_flagged_column",
		AppliedAt:  time.Now(),
		PreCounts:  map[string]int64{"tickets": 1200},
		PostCounts: map[string]int64{"tickets": 1200},
	}

	mock.ExpectExec("INSERT INTO migration_ledger").
		WithArgs(record.Version, record.AppliedAt, []byte(`{"tickets":1200}`), []byte(`{"tickets":1200}`), false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = ds.RecordMigration(context.TODO(), record)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkMigrationRolledBack_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE migration_ledger").
		WithArgs("002_add_flagged_column").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.MarkMigrationRolledBack(context.TODO(), "002_add_flagged_column")
	assert.NoError(t, err)
}

func TestMarkMigrationRolledBack_UnknownVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE migration_ledger").
		WithArgs("999_not_applied").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.MarkMigrationRolledBack(context.TODO(), "999_not_applied")
	assert.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestGetMigrationRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()

	mock.ExpectQuery("SELECT version, applied_at").
		WillReturnRows(sqlmock.NewRows([]string{"version", "applied_at", "pre_counts", "post_counts", "rolled_back"}).
			AddRow("002_add_flagged_column", now, []byte(`{"tickets":1200}`), []byte(`{"tickets":400}`), true).
			AddRow("001_create_tickets", now.Add(-time.Hour), []byte(`{}`), []byte(`{"tickets":1200}`), false))

	records, err := ds.GetMigrationRecords(context.TODO())
	assert.NoError(t, err)
	assert.Len(t, records, 2)
	assert.True(t, records[0].RolledBack)
	assert.Equal(t, int64(400), records[0].PostCounts["tickets"])
	assert.Equal(t, "001_create_tickets", records[1].Version)
}

func TestCountRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "tickets"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1200))

	count, err := ds.CountRows(context.TODO(), "tickets")
	assert.NoError(t, err)
	assert.Equal(t, int64(1200), count)
}
