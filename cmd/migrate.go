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

/*
Package main provides the CLI commands for managing database migrations.
Migrations run through the migration engine, which snapshots row counts
around every step and rolls back automatically on integrity loss.
*/

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/netplayhub/hubsync"
	"github.com/netplayhub/hubsync/config"
	"github.com/netplayhub/hubsync/database"
	"github.com/spf13/cobra"
)

// migrateCommands creates the root command for migration-related operations.
func migrateCommands(_ *hubsyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "start hubsync migration",
	}

	cmd.AddCommand(migrateUpCommands())
	cmd.AddCommand(migrateDownCommands())
	cmd.AddCommand(migrateLedgerCommands())

	return cmd
}

// setupEngine wires the migration engine against the configured database.
func setupEngine() (*hubsync.MigrationEngine, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, fmt.Errorf("error fetching config: %v", err)
	}

	db, err := database.ConnectDB(cnf.DataSource.Dns)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %v", err)
	}

	ds, err := database.NewDataSource(cnf)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	return hubsync.NewMigrationEngine(db, ds, hubsync.NewQueue(cnf), cnf), nil
}

// migrateUpCommands creates the command for applying migrations.
func migrateUpCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use: "up",
		Run: func(cmd *cobra.Command, args []string) {
			engine, err := setupEngine()
			if err != nil {
				log.Print(err)
				return
			}

			n, err := engine.Up(context.Background())
			if err != nil {
				log.Printf("Error migrating up: %v", err)
			}
			fmt.Printf("Applied %d migrations!\n", n)
		},
	}

	return cmd
}

// migrateDownCommands creates the command for rolling back the latest migration.
func migrateDownCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use: "down",
		Run: func(cmd *cobra.Command, args []string) {
			engine, err := setupEngine()
			if err != nil {
				log.Print(err)
				return
			}

			n, err := engine.Down(context.Background(), 1)
			if err != nil {
				log.Printf("Error migrating down: %v", err)
			}
			fmt.Printf("Rolled back %d migrations!\n", n)
		},
	}

	return cmd
}

// migrateLedgerCommands creates the command that prints the migration ledger.
func migrateLedgerCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use: "ledger",
		Run: func(cmd *cobra.Command, args []string) {
			engine, err := setupEngine()
			if err != nil {
				log.Print(err)
				return
			}

			records, err := engine.Ledger(context.Background())
			if err != nil {
				log.Printf("Error reading migration ledger: %v", err)
				return
			}

			for _, rec := range records {
				state := "applied"
				if rec.RolledBack {
					state = "rolled back"
				}
				fmt.Printf("%s\t%s\t%s\n", rec.Version, rec.AppliedAt.Format("2006-01-02 15:04:05"), state)
			}
		},
	}

	return cmd
}
