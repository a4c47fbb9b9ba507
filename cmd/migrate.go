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
	"fmt"
	"log"

	"github.com/chronosfinance/ledger/database"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
)

// migrateCommands creates the root command for migration-related operations.
func migrateCommands(app *ledgerInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply or roll back the SQL schema",
	}

	cmd.AddCommand(migrateDirectionCommand(app, "up", migrate.Up))
	cmd.AddCommand(migrateDirectionCommand(app, "down", migrate.Down))
	return cmd
}

func migrateDirectionCommand(app *ledgerInstance, use string, direction migrate.MigrationDirection) *cobra.Command {
	return &cobra.Command{
		Use: use,
		RunE: func(cmd *cobra.Command, args []string) error {
			driver := app.cnf.DataSource.Driver
			if driver != database.DriverPostgres && driver != database.DriverSQLite {
				return fmt.Errorf("migrations only apply to SQL drivers, got %q", driver)
			}

			conn, err := database.ConnectDB(driver, app.cnf.DataSource.Dns)
			if err != nil {
				return fmt.Errorf("error connecting to database: %v", err)
			}
			ds := &database.Datasource{Conn: conn, Driver: driver}
			defer ds.Close()

			n, err := ds.Migrate(direction)
			if err != nil {
				return fmt.Errorf("error migrating %s: %v", use, err)
			}
			log.Printf("Applied %d migrations (%s)", n, use)
			return nil
		},
	}
}
