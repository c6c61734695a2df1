// database/record_store.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gewnthar/registers/models"
	"github.com/google/uuid"
)

const recordColumns = `id, row_id, entity, prefix, reference, dataset_id, data, entry_date, start_date, end_date, version, created_at, updated_at`

func scanRecord(row scanner) (*models.Record, error) {
	var r models.Record
	var data []byte
	var entryDate, startDate, endDate sql.NullString

	err := row.Scan(
		&r.ID, &r.RowID, &r.Entity, &r.Prefix, &r.Reference, &r.DatasetID, &data,
		&entryDate, &startDate, &endDate, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Data = map[string]string{}
	if err := unmarshalJSON(data, &r.Data); err != nil {
		return nil, fmt.Errorf("record %s data: %w", r.ID, err)
	}
	if r.EntryDate, err = scanDate(entryDate); err != nil {
		return nil, fmt.Errorf("record %s entry_date: %w", r.ID, err)
	}
	if r.StartDate, err = scanDate(startDate); err != nil {
		return nil, fmt.Errorf("record %s start_date: %w", r.ID, err)
	}
	if r.EndDate, err = scanDate(endDate); err != nil {
		return nil, fmt.Errorf("record %s end_date: %w", r.ID, err)
	}
	return &r, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]models.Record, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		records = append(records, *r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating record rows: %w", err)
	}
	return records, nil
}

// ListRecords returns the records of a dataset ordered by entity.
func (s *Store) ListRecords(ctx context.Context, datasetID string) ([]models.Record, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM record WHERE dataset_id = ? ORDER BY entity`, datasetID)
}

// GetRecord returns one record of a dataset.
func (s *Store) GetRecord(ctx context.Context, datasetID string, id uuid.UUID) (*models.Record, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM record WHERE dataset_id = ? AND id = ?`, datasetID, id)
	r, err := scanRecord(row)
	return recordResult(r, err, fmt.Sprintf("record %s", id))
}

// GetRecordByEntity returns the record of a dataset holding entity.
func (s *Store) GetRecordByEntity(ctx context.Context, datasetID string, entity int64) (*models.Record, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM record WHERE dataset_id = ? AND entity = ?`, datasetID, entity)
	r, err := scanRecord(row)
	return recordResult(r, err, fmt.Sprintf("entity %d", entity))
}

func recordResult(r *models.Record, err error, what string) (*models.Record, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}
	return r, nil
}

// CountRecords returns how many records a dataset holds.
func (s *Store) CountRecords(ctx context.Context, datasetID string) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM record WHERE dataset_id = ?`, datasetID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records for %s: %w", datasetID, err)
	}
	return n, nil
}

// MaxEntity returns the highest entity in a dataset, or nil when it is empty.
func (s *Store) MaxEntity(ctx context.Context, datasetID string) (*int64, error) {
	var max sql.NullInt64
	if err := s.q.QueryRowContext(ctx, `SELECT MAX(entity) FROM record WHERE dataset_id = ?`, datasetID).Scan(&max); err != nil {
		return nil, fmt.Errorf("failed to read max entity for %s: %w", datasetID, err)
	}
	if !max.Valid {
		return nil, nil
	}
	return &max.Int64, nil
}

// InsertRecord stores a new record.
func (s *Store) InsertRecord(ctx context.Context, r *models.Record, now time.Time) error {
	data, err := marshalJSON(nonNil(r.Data))
	if err != nil {
		return err
	}
	if r.Version == 0 {
		r.Version = 1
	}
	r.CreatedAt, r.UpdatedAt = now.UTC(), now.UTC()

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO record (id, row_id, entity, prefix, reference, dataset_id, data, entry_date, start_date, end_date, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.RowID, r.Entity, r.Prefix, r.Reference, r.DatasetID, data,
		nullDate(r.EntryDate), nullDate(r.StartDate), nullDate(r.EndDate), r.Version, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		slog.Error("Database: failed to insert record", "dataset", r.DatasetID, "reference", r.Reference, "entity", r.Entity, "error", err)
		return fmt.Errorf("failed to insert record %s: %w", r.Reference, err)
	}
	return nil
}

// UpdateRecord writes r if the stored version still equals expectedVersion and
// bumps the version. A stale version fails with models.ErrConflict.
func (s *Store) UpdateRecord(ctx context.Context, r *models.Record, expectedVersion int, now time.Time) error {
	data, err := marshalJSON(nonNil(r.Data))
	if err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE record
		SET prefix = ?, reference = ?, data = ?, entry_date = ?, start_date = ?, end_date = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, r.Prefix, r.Reference, data, nullDate(r.EntryDate), nullDate(r.StartDate), nullDate(r.EndDate), now.UTC(), r.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", r.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("record %s version %d: %w", r.ID, expectedVersion, models.ErrConflict)
	}
	r.Version = expectedVersion + 1
	r.UpdatedAt = now.UTC()
	return nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
