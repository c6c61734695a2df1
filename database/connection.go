// database/connection.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/gewnthar/registers/config"
	_ "github.com/go-sql-driver/mysql" // MariaDB/MySQL driver
	_ "github.com/mattn/go-sqlite3"
)

// Open opens the connection pool for the configured driver and pings it.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool settings
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	if cfg.Driver == "sqlite3" {
		// One writer at a time; also keeps :memory: databases on one connection.
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close() // Close the connection if ping fails
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database: connected", "driver", cfg.Driver)
	return db, nil
}

// Close closes the connection pool.
func Close(db *sql.DB) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		slog.Error("Database: failed to close connection", "error", err)
		return
	}
	slog.Info("Database: connection closed")
}
