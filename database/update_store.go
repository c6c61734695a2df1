// database/update_store.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gewnthar/registers/models"
	"github.com/google/uuid"
)

// InsertUpdate stores an update with all of its rows.
func (s *Store) InsertUpdate(ctx context.Context, u *models.Update, now time.Time) error {
	return s.WithTx(ctx, func(tx *Store) error {
		u.CreatedAt, u.UpdatedAt = now.UTC(), now.UTC()
		_, err := tx.q.ExecContext(ctx, `
			INSERT INTO updates (id, name, dataset_id, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, u.ID, nullString(u.Name), u.DatasetID, string(u.Status), u.CreatedAt, u.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert update %s: %w", u.ID, err)
		}

		for i := range u.Records {
			ur := &u.Records[i]
			ur.UpdateID = u.ID
			data, err := marshalJSON(nonNil(ur.Data))
			if err != nil {
				return err
			}
			_, err = tx.q.ExecContext(ctx, `
				INSERT INTO update_record (id, update_id, position, data, kind, notes, processed)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, ur.ID, ur.UpdateID, ur.Position, data, nullString(string(ur.Kind)), nil, ur.Processed)
			if err != nil {
				return fmt.Errorf("failed to insert update row %d: %w", ur.Position, err)
			}
		}
		return nil
	})
}

// GetUpdate returns an update of a dataset with its rows in file order.
func (s *Store) GetUpdate(ctx context.Context, datasetID string, id uuid.UUID) (*models.Update, error) {
	var u models.Update
	var name sql.NullString
	var status string
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, dataset_id, status, created_at, updated_at
		FROM updates WHERE id = ? AND dataset_id = ?
	`, id, datasetID).Scan(&u.ID, &name, &u.DatasetID, &status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get update %s: %w", id, err)
	}
	u.Name = name.String
	u.Status = models.UpdateStatus(status)

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, update_id, position, data, kind, notes, processed
		FROM update_record WHERE update_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows of update %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var ur models.UpdateRecord
		var data, notes []byte
		var kind sql.NullString
		if err := rows.Scan(&ur.ID, &ur.UpdateID, &ur.Position, &data, &kind, &notes, &ur.Processed); err != nil {
			return nil, fmt.Errorf("failed to scan update row: %w", err)
		}
		ur.Kind = models.RowKind(kind.String)
		if err := unmarshalJSON(data, &ur.Data); err != nil {
			return nil, fmt.Errorf("update row %s: %w", ur.ID, err)
		}
		if err := unmarshalJSON(notes, &ur.Notes); err != nil {
			return nil, fmt.Errorf("update row %s: %w", ur.ID, err)
		}
		u.Records = append(u.Records, ur)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating update rows: %w", err)
	}
	return &u, nil
}

// ListUpdates returns a dataset's updates in the given status, newest first.
func (s *Store) ListUpdates(ctx context.Context, datasetID string, status models.UpdateStatus) ([]models.Update, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, dataset_id, status, created_at, updated_at
		FROM updates WHERE dataset_id = ? AND status = ?
		ORDER BY created_at DESC
	`, datasetID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query updates for %s: %w", datasetID, err)
	}
	defer rows.Close()

	var updates []models.Update
	for rows.Next() {
		var u models.Update
		var name sql.NullString
		var st string
		if err := rows.Scan(&u.ID, &name, &u.DatasetID, &st, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan update: %w", err)
		}
		u.Name = name.String
		u.Status = models.UpdateStatus(st)
		updates = append(updates, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating updates: %w", err)
	}
	return updates, nil
}

// SaveUpdateRecord stores the classification and processed flag of a row.
func (s *Store) SaveUpdateRecord(ctx context.Context, ur *models.UpdateRecord) error {
	var notes any
	if len(ur.Notes) > 0 {
		encoded, err := marshalJSON(ur.Notes)
		if err != nil {
			return err
		}
		notes = encoded
	}
	_, err := s.q.ExecContext(ctx, `UPDATE update_record SET kind = ?, notes = ?, processed = ? WHERE id = ?`,
		nullString(string(ur.Kind)), notes, ur.Processed, ur.ID)
	if err != nil {
		return fmt.Errorf("failed to save update row %s: %w", ur.ID, err)
	}
	return nil
}

// SetUpdateStatus moves an update to status.
func (s *Store) SetUpdateStatus(ctx context.Context, id uuid.UUID, status models.UpdateStatus, now time.Time) error {
	_, err := s.q.ExecContext(ctx, `UPDATE updates SET status = ?, updated_at = ? WHERE id = ?`, string(status), now.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set update %s to %s: %w", id, status, err)
	}
	return nil
}
