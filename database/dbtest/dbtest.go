// database/dbtest/dbtest.go
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/gewnthar/registers/database"
	"github.com/gewnthar/registers/models"
)

// NewStore returns a store over a migrated in-memory sqlite database that is
// closed when the test ends.
func NewStore(t testing.TB) *database.Store {
	t.Helper()

	store, db, err := Open()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return store
}

// Open migrates a fresh in-memory sqlite database. Callers close db.
func Open() (*database.Store, *sql.DB, error) {
	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open test db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := database.Migrate(db, "sqlite3"); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate test db: %w", err)
	}
	return database.NewStore(db), db, nil
}

// Dataset is a small schema used across tests.
func Dataset() *models.Dataset {
	return &models.Dataset{
		ID:            "tree",
		Name:          "Tree",
		EntityMinimum: 100,
		EntityMaximum: 105,
		Fields: []models.Field{
			{Field: "entity", Name: "Entity", Datatype: models.DatatypeInteger},
			{Field: "name", Name: "Name", Datatype: models.DatatypeString},
			{Field: "prefix", Name: "Prefix", Datatype: models.DatatypeString},
			{Field: "reference", Name: "Reference", Datatype: models.DatatypeString},
			{Field: "organisation", Name: "Organisation", Datatype: models.DatatypeCurie},
			{Field: "entry-date", Name: "Entry date", Datatype: models.DatatypeDatetime},
			{Field: "start-date", Name: "Start date", Datatype: models.DatatypeDatetime},
			{Field: "end-date", Name: "End date", Datatype: models.DatatypeDatetime},
		},
	}
}

// SeedDataset saves ds and fails the test on error.
func SeedDataset(t testing.TB, s *database.Store, ds *models.Dataset) {
	t.Helper()
	if err := s.SaveDataset(context.Background(), ds, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("failed to seed dataset %s: %v", ds.ID, err)
	}
}

// Clock returns a clock that advances one second per call, starting at start.
func Clock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(time.Second)
		return now
	}
}
