// database/migrations.go
package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationsTable is created by the migration library to track versions.
const MigrationsTable = "schema_migrations"

//go:embed migrations/mysql/*.sql migrations/sqlite3/*.sql
var migrationFiles embed.FS

type migrationLogger struct{}

func (migrationLogger) Printf(format string, v ...interface{}) {
	slog.Debug(fmt.Sprintf("Database: "+format, v...))
}

func (migrationLogger) Verbose() bool {
	return true
}

// Migrate applies every pending migration for driver to db. The db stays
// open; closing the migrate instance would close it.
func Migrate(db *sql.DB, driver string) error {
	start := time.Now()

	src, err := iofs.New(migrationFiles, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("failed to load %s migrations: %w", driver, err)
	}

	var instance migratedb.Driver
	switch driver {
	case "mysql":
		instance, err = migratemysql.WithInstance(db, &migratemysql.Config{MigrationsTable: MigrationsTable})
	case "sqlite3":
		instance, err = migratesqlite.WithInstance(db, &migratesqlite.Config{MigrationsTable: MigrationsTable})
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, instance)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrationLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed up: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	slog.Info("Database: migrations applied", "version", version, "dirty", dirty, "took", time.Since(start))
	return nil
}
