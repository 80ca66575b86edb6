/*
Copyright 2024 Blnk Finance Authors.

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

package main

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/blnkfinance/collector"
	"github.com/blnkfinance/collector/config"
	"github.com/blnkfinance/collector/database"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
)

// migrationSchema holds both the collector tables and sql-migrate's bookkeeping table.
const migrationSchema = "collector"

// migrationSource returns the embedded sql/ migrations: the advance, payment and collection attempt
// tables, then the ab_testing_events table holding experiment bucket markers.
func migrationSource() *migrate.EmbedFileSystemMigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: collector.SQLFiles,
		Root:       "sql",
	}
}

func openMigrationDB() (*sql.DB, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, fmt.Errorf("error fetching config: %w", err)
	}

	db, err := database.ConnectDB(cnf.DataSource.Dns)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	migrate.SetSchema(migrationSchema)
	return db, nil
}

// runMigrations applies at most max migrations in direction. max 0 means all of them.
func runMigrations(direction migrate.MigrationDirection, max int) (int, error) {
	db, err := openMigrationDB()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return migrate.ExecMax(db, "postgres", migrationSource(), direction, max)
}

func migrateCommands(_ *collectorInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "manage the collector schema",
		Long: "Applies or rolls back the collector schema: advances, payments, collection attempts and the " +
			"ab_testing_events experiment markers the bucketing decisions read before assigning a bucket.",
	}

	cmd.AddCommand(migrateUpCommands())
	cmd.AddCommand(migrateDownCommands())
	cmd.AddCommand(migrateStatusCommands())

	return cmd
}

func migrateUpCommands() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "apply every pending collector migration",
		Run: func(cmd *cobra.Command, args []string) {
			n, err := runMigrations(migrate.Up, 0)
			if err != nil {
				log.Printf("Error migrating up: %v", err)
				return
			}
			fmt.Printf("Applied %d migrations!\n", n)
		},
	}
}

func migrateDownCommands() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "roll back collector migrations",
		Long: "Rolls back the newest collector migrations. Dropping ab_testing_events discards every " +
			"recorded bucket, so advances are re-bucketed the next time they are collected.",
		Run: func(cmd *cobra.Command, args []string) {
			n, err := runMigrations(migrate.Down, steps)
			if err != nil {
				log.Printf("Error migrating down: %v", err)
				return
			}
			fmt.Printf("Rolled back %d migrations!\n", n)
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back, 0 for all")
	return cmd
}

func migrateStatusCommands() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "list collector migrations and when each was applied",
		Run: func(cmd *cobra.Command, args []string) {
			db, err := openMigrationDB()
			if err != nil {
				log.Print(err)
				return
			}
			defer db.Close()

			known, err := migrationSource().FindMigrations()
			if err != nil {
				log.Printf("Error reading migrations: %v", err)
				return
			}
			records, err := migrate.GetMigrationRecords(db, "postgres")
			if err != nil {
				log.Printf("Error reading migration records: %v", err)
				return
			}

			applied := make(map[string]string, len(records))
			for _, r := range records {
				applied[r.Id] = r.AppliedAt.Format("2006-01-02 15:04:05")
			}
			for _, m := range known {
				at, ok := applied[m.Id]
				if !ok {
					at = "pending"
				}
				fmt.Printf("%-32s %s\n", m.Id, at)
			}
		},
	}
}
