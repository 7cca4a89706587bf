package cmd

import (
	"database/sql"
	"fmt"

	"docshare/config/database"
	"docshare/pkg/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: withDB(func(db *sql.DB) error {
		if err := database.MigrateUp(db); err != nil {
			return err
		}
		logger.Sugar.Info("Migrations applied")
		return nil
	}),
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last migration",
	RunE: withDB(func(db *sql.DB) error {
		if err := database.MigrateDown(db); err != nil {
			return err
		}
		logger.Sugar.Info("Rolled back one migration")
		return nil
	}),
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: withDB(func(db *sql.DB) error {
		version, dirty, err := database.MigrateVersion(db)
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		return nil
	}),
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func withDB(fn func(db *sql.DB) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		db, err := database.Connect(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(db)
	}
}
