// database/dataset_store.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gewnthar/registers/models"
)

const datasetColumns = `dataset, name, prefix, entity_minimum, entity_maximum, end_date, last_updated, created_at`

func scanDataset(row scanner) (*models.Dataset, error) {
	var d models.Dataset
	var prefix, endDate sql.NullString
	var lastUpdated sql.NullTime

	err := row.Scan(&d.ID, &d.Name, &prefix, &d.EntityMinimum, &d.EntityMaximum, &endDate, &lastUpdated, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Prefix = prefix.String
	if d.EndDate, err = scanDate(endDate); err != nil {
		return nil, fmt.Errorf("dataset %s end_date: %w", d.ID, err)
	}
	d.LastUpdated = timePtr(lastUpdated)
	return &d, nil
}

// ListDatasets returns every dataset ordered by id, without fields.
func (s *Store) ListDatasets(ctx context.Context) ([]models.Dataset, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+datasetColumns+` FROM dataset ORDER BY dataset`)
	if err != nil {
		return nil, fmt.Errorf("failed to query datasets: %w", err)
	}
	defer rows.Close()

	var datasets []models.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dataset row: %w", err)
		}
		datasets = append(datasets, *d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dataset rows: %w", err)
	}
	return datasets, nil
}

// GetDataset returns a dataset with its fields in display order.
func (s *Store) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+datasetColumns+` FROM dataset WHERE dataset = ?`, id)
	d, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset %s: %w", id, err)
	}

	if d.Fields, err = s.datasetFields(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Store) datasetFields(ctx context.Context, id string) ([]models.Field, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT f.field, f.name, f.datatype, f.description
		FROM field f
		JOIN dataset_field df ON df.field_id = f.field
		WHERE df.dataset_id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query fields for %s: %w", id, err)
	}
	defer rows.Close()

	var fields []models.Field
	for rows.Next() {
		var f models.Field
		var description sql.NullString
		if err := rows.Scan(&f.Field, &f.Name, &f.Datatype, &description); err != nil {
			return nil, fmt.Errorf("failed to scan field row: %w", err)
		}
		f.Description = description.String
		fields = append(fields, f)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating field rows: %w", err)
	}
	return models.SortFields(fields), nil
}

// SaveDataset inserts or updates a dataset and replaces its field list.
// Fields are shared between datasets and are upserted by slug.
func (s *Store) SaveDataset(ctx context.Context, d *models.Dataset, now time.Time) error {
	return s.WithTx(ctx, func(tx *Store) error {
		var exists int
		err := tx.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM dataset WHERE dataset = ?`, d.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check dataset %s: %w", d.ID, err)
		}

		if exists == 0 {
			d.CreatedAt = now.UTC()
			_, err = tx.q.ExecContext(ctx, `
				INSERT INTO dataset (dataset, name, prefix, entity_minimum, entity_maximum, end_date, last_updated, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, d.ID, d.Name, nullString(d.Prefix), d.EntityMinimum, d.EntityMaximum, nullDate(d.EndDate), nullTime(d.LastUpdated), d.CreatedAt)
		} else {
			_, err = tx.q.ExecContext(ctx, `
				UPDATE dataset SET name = ?, prefix = ?, entity_minimum = ?, entity_maximum = ?, end_date = ?
				WHERE dataset = ?
			`, d.Name, nullString(d.Prefix), d.EntityMinimum, d.EntityMaximum, nullDate(d.EndDate), d.ID)
		}
		if err != nil {
			slog.Error("Database: failed to save dataset", "dataset", d.ID, "error", err)
			return fmt.Errorf("failed to save dataset %s: %w", d.ID, err)
		}

		for _, f := range d.Fields {
			if err := tx.saveField(ctx, f); err != nil {
				return err
			}
		}

		if _, err := tx.q.ExecContext(ctx, `DELETE FROM dataset_field WHERE dataset_id = ?`, d.ID); err != nil {
			return fmt.Errorf("failed to clear fields for %s: %w", d.ID, err)
		}
		for _, f := range d.Fields {
			if _, err := tx.q.ExecContext(ctx, `INSERT INTO dataset_field (dataset_id, field_id) VALUES (?, ?)`, d.ID, f.Field); err != nil {
				return fmt.Errorf("failed to link field %s to %s: %w", f.Field, d.ID, err)
			}
		}

		slog.Info("Database: saved dataset", "dataset", d.ID, "fields", len(d.Fields))
		return nil
	})
}

func (s *Store) saveField(ctx context.Context, f models.Field) error {
	var exists int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM field WHERE field = ?`, f.Field).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check field %s: %w", f.Field, err)
	}
	var err error
	if exists == 0 {
		_, err = s.q.ExecContext(ctx, `INSERT INTO field (field, name, datatype, description) VALUES (?, ?, ?, ?)`,
			f.Field, f.Name, f.Datatype, nullString(f.Description))
	} else {
		_, err = s.q.ExecContext(ctx, `UPDATE field SET name = ?, datatype = ?, description = ? WHERE field = ?`,
			f.Name, f.Datatype, nullString(f.Description), f.Field)
	}
	if err != nil {
		return fmt.Errorf("failed to save field %s: %w", f.Field, err)
	}
	return nil
}

// TouchDataset bumps last_updated after records were appended.
func (s *Store) TouchDataset(ctx context.Context, id string, at time.Time) error {
	_, err := s.q.ExecContext(ctx, `UPDATE dataset SET last_updated = ? WHERE dataset = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch dataset %s: %w", id, err)
	}
	return nil
}
