// Package migrate applies the embedded schema of the session event store
// using golang-migrate.
package migrate

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrations embed.FS

// migrator is the subset of *migrate.Migrate used here.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
}

// migratorFactory builds a migrator for db. Tests replace it.
var migratorFactory = newMigrator

// newMigrator binds the embedded source to db. The migrator is not closed by
// callers: closing the postgres driver would close db, which the caller owns.
func newMigrator(db *sql.DB) (migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "session_schema_migrations"})
	if err != nil {
		return nil, fmt.Errorf("creating postgres driver: %w", err)
	}
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("creating migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

// withMigrator runs fn against a fresh migrator, treating ErrNoChange as
// success and wrapping other failures with op.
func withMigrator(db *sql.DB, op string, fn func(migrator) error) error {
	m, err := migratorFactory(db)
	if err != nil {
		return err
	}
	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Run applies every pending migration and logs the resulting version.
func Run(db *sql.DB) error {
	var (
		version uint
		dirty   bool
	)
	err := withMigrator(db, "running migrations", func(m migrator) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		var verr error
		version, dirty, verr = m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return nil
		}
		return verr
	})
	if err != nil {
		return err
	}

	if dirty {
		slog.Warn("session event schema is dirty", "version", version)
		return nil
	}
	slog.Info("session event schema up to date", "version", version)
	return nil
}

// Version returns the applied schema version and whether it is dirty. An
// empty database reports version 0.
func Version(db *sql.DB) (uint, bool, error) {
	m, err := migratorFactory(db)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading schema version: %w", err)
	}
	return v, dirty, nil
}

// Down rolls back every migration, dropping the event history.
func Down(db *sql.DB) error {
	return withMigrator(db, "rolling back migrations", func(m migrator) error { return m.Down() })
}

// Steps applies n migrations when n is positive and rolls back -n when
// negative.
func Steps(db *sql.DB, n int) error {
	return withMigrator(db, "stepping migrations", func(m migrator) error { return m.Steps(n) })
}
