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

// Package database is the Postgres persistence layer: the local ticket
// store that keeps accepting support requests while HubSoft is down,
// and the append-only migration ledger.
package database

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/netplayhub/hubsync/config"
)

var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	return getDBConnection(configuration)
}

// getDBConnection initializes the shared connection exactly once.
func getDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		logrus.WithError(err).Error("database connection failed")
		return nil, err
	}
	if err := createTicketTable(db); err != nil {
		return nil, err
	}
	if err := createMigrationLedgerTable(db); err != nil {
		return nil, err
	}
	return db, nil
}

// GenerateUUIDWithSuffix issues a prefixed identifier, e.g. tkt_<uuid>.
func GenerateUUIDWithSuffix(module string) string {
	return fmt.Sprintf("%s_%s", module, uuid.New().String())
}

func createTicketTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			id SERIAL PRIMARY KEY,
			ticket_id TEXT NOT NULL UNIQUE,
			protocol TEXT NOT NULL UNIQUE,
			remote_protocol TEXT,
			client_ref TEXT NOT NULL,
			subject TEXT NOT NULL,
			description TEXT,
			remote_status TEXT,
			sync_status TEXT NOT NULL DEFAULT 'PENDING',
			sync_attempts INT NOT NULL DEFAULT 0,
			sync_error TEXT,
			flagged_for_review BOOLEAN NOT NULL DEFAULT FALSE,
			last_sync_attempt TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_tickets_sync_status ON tickets (sync_status);
		CREATE INDEX IF NOT EXISTS idx_tickets_remote_protocol ON tickets (remote_protocol);
	`)
	return err
}

func createMigrationLedgerTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migration_ledger (
			id SERIAL PRIMARY KEY,
			version TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			pre_counts JSONB NOT NULL DEFAULT '{}',
			post_counts JSONB NOT NULL DEFAULT '{}',
			rolled_back BOOLEAN NOT NULL DEFAULT FALSE
		)
	`)
	return err
}
