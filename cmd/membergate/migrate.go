// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/membergate/membergate/internal/config"
	"github.com/membergate/membergate/internal/store"
)

// newMigrateCmd creates the migrate subcommand with up, down, and
// status operations.
func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE:  runMigrateUp,
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations (destructive)",
			RunE:  runMigrateDown,
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the current migration version",
			RunE:  runMigrateStatus,
		},
	)

	return cmd
}

// databaseURL resolves the connection URL from the config file or the
// DATABASE_URL environment variable.
func databaseURL() (string, error) {
	if configFile != "" {
		cfg, err := config.Load(configFile, nil)
		if err != nil {
			return "", err
		}
		return cfg.Database.URL, nil
	}

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		url = os.Getenv("MEMBERGATE_DATABASE__URL")
	}
	if url == "" {
		return "", oops.Code("CONFIG_INVALID").
			Errorf("set DATABASE_URL or pass --config with database.url")
	}
	return url, nil
}

func newMigrator() (*store.Migrator, error) {
	url, err := databaseURL()
	if err != nil {
		return nil, err
	}
	return store.NewMigrator(url)
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }() //nolint:errcheck // close errors are not actionable here

	cmd.Println("Applying migrations...")
	if err := m.Up(); err != nil {
		return err
	}
	cmd.Println("Migrations applied")
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }() //nolint:errcheck // close errors are not actionable here

	cmd.Println("Rolling back migrations...")
	if err := m.Down(); err != nil {
		return err
	}
	cmd.Println("Migrations rolled back")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }() //nolint:errcheck // close errors are not actionable here

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if dirty {
		cmd.Printf("Version %d (dirty - manual intervention required)\n", version)
		return nil
	}
	if version == 0 {
		cmd.Println("No migrations applied")
		return nil
	}
	cmd.Printf("Version %d\n", version)
	return nil
}
