package main

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/spf13/cobra"

	"github.com/txn2/budget-data-gateway/pkg/config"
	"github.com/txn2/budget-data-gateway/pkg/database/migrate"
)

func newMigrateCmd() *cobra.Command {
	var configPath, dsn string

	open := func() (*sql.DB, error) {
		if dsn == "" {
			cfg, err := config.Load(configPath)
			if err != nil {
				return nil, fmt.Errorf("loading config: %w", err)
			}
			dsn = cfg.Database.DSN
		}
		if dsn == "" {
			return nil, errors.New("no database dsn: pass --dsn or set database.dsn")
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return db, nil
	}

	withDB := func(fn func(cmd *cobra.Command, db *sql.DB, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			return fn(cmd, db, args)
		}
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the session event database schema",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (YAML)")
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN, overrides database.dsn")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, db *sql.DB, _ []string) error {
				if err := migrate.Run(db); err != nil {
					return err
				}
				return printVersion(cmd, db)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, db *sql.DB, _ []string) error {
				if err := migrate.Down(db); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "all migrations rolled back")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Apply (n > 0) or roll back (n < 0) n migrations",
			Args:  cobra.ExactArgs(1),
			RunE: withDB(func(cmd *cobra.Command, db *sql.DB, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				if err := migrate.Steps(db, n); err != nil {
					return err
				}
				return printVersion(cmd, db)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE:  withDB(func(cmd *cobra.Command, db *sql.DB, _ []string) error { return printVersion(cmd, db) }),
		},
	)
	return cmd
}

func printVersion(cmd *cobra.Command, db *sql.DB) error {
	v, dirty, err := migrate.Version(db)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", v, dirty)
	return nil
}
