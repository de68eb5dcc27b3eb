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

/*
Package main provides the CLI commands for managing database migrations in the VexoGate application.
This includes commands for applying and rolling back migrations.
*/

package main

import (
	"fmt"
	"log"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github.com/vexogate/vexogate"
	"github.com/vexogate/vexogate/config"
	"github.com/vexogate/vexogate/database"
)

const migrationSchema = "vexogate"

// migrateCommands creates the root command for migration-related operations.
func migrateCommands(app *gateInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run vexogate migrations",
	}

	cmd.AddCommand(migrateUpCommands(app))
	cmd.AddCommand(migrateDownCommands(app))

	return cmd
}

func migrationSource() migrate.EmbedFileSystemMigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: vexogate.SQLFiles,
		Root:       "sql",
	}
}

func runMigrations(cnf *config.Configuration, direction migrate.MigrationDirection) (int, error) {
	db, err := database.ConnectDB(cnf.DataSource.Dns)
	if err != nil {
		return 0, fmt.Errorf("error connecting to database: %v", err)
	}
	defer db.Close()

	migrate.SetSchema(migrationSchema)
	return migrate.Exec(db, "postgres", migrationSource(), direction)
}

// migrateUpCommands creates the command for applying migrations.
func migrateUpCommands(app *gateInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "up",
		Run: func(cmd *cobra.Command, args []string) {
			n, err := runMigrations(app.cnf, migrate.Up)
			if err != nil {
				log.Printf("Error migrating up: %v", err)
				return
			}
			fmt.Printf("Applied %d migrations!\n", n)
		},
	}

	return cmd
}

// migrateDownCommands creates the command for rolling back migrations.
func migrateDownCommands(app *gateInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "down",
		Run: func(cmd *cobra.Command, args []string) {
			n, err := runMigrations(app.cnf, migrate.Down)
			if err != nil {
				log.Printf("Error migrating down: %v", err)
				return
			}
			fmt.Printf("Rolled back %d migrations!\n", n)
		},
	}

	return cmd
}
