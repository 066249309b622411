package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sitewatch/sitewatch/internal/core/storage/postgres"
	"github.com/sitewatch/sitewatch/internal/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL directory schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withDirectoryDB(func(db *sql.DB) error {
				return migrations.RunMigrations(db, true)
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withDirectoryDB(func(db *sql.DB) error {
				return migrations.Rollback(db, steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	ver := &cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withDirectoryDB(func(db *sql.DB) error {
				v, dirty, err := migrations.Version(db)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "version %d (dirty: %t)\n", v, dirty)
				return nil
			})
		},
	}

	cmd.AddCommand(up, down, ver)
	return cmd
}

func withDirectoryDB(fn func(db *sql.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Directory.Type != "postgres" {
		return fmt.Errorf("migrations require directory.type postgres, got %q", cfg.Directory.Type)
	}

	db, err := postgres.Open(cfg.Directory.DSN, cfg.Directory.MaxOpenConns, cfg.Directory.MaxIdleConns)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
