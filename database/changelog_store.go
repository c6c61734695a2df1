// database/changelog_store.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gewnthar/registers/models"
	"github.com/google/uuid"
)

const changeLogColumns = `id, change_type, data, notes, dataset_id, record_id, created_at, pushed_to_github`

// InsertChangeLog appends an audit entry. Entries are never edited apart
// from the pushed flag.
func (s *Store) InsertChangeLog(ctx context.Context, c *models.ChangeLog) error {
	if c.Data.From == nil {
		c.Data.From = map[string]string{}
	}
	data, err := marshalJSON(c.Data)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO change_log (id, change_type, data, notes, dataset_id, record_id, created_at, pushed_to_github)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, string(c.ChangeType), data, nullString(c.Notes), c.DatasetID, c.RecordID, c.CreatedAt.UTC(), c.PushedToGitHub)
	if err != nil {
		return fmt.Errorf("failed to insert change log for record %s: %w", c.RecordID, err)
	}
	return nil
}

func (s *Store) queryChangeLogs(ctx context.Context, query string, args ...any) ([]models.ChangeLog, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query change logs: %w", err)
	}
	defer rows.Close()

	var logs []models.ChangeLog
	for rows.Next() {
		var c models.ChangeLog
		var changeType string
		var data []byte
		var notes sql.NullString
		if err := rows.Scan(&c.ID, &changeType, &data, &notes, &c.DatasetID, &c.RecordID, &c.CreatedAt, &c.PushedToGitHub); err != nil {
			return nil, fmt.Errorf("failed to scan change log row: %w", err)
		}
		c.ChangeType = models.ChangeType(changeType)
		c.Notes = notes.String
		if err := unmarshalJSON(data, &c.Data); err != nil {
			return nil, fmt.Errorf("change log %s: %w", c.ID, err)
		}
		logs = append(logs, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change log rows: %w", err)
	}
	return logs, nil
}

// ListChangeLogs returns a dataset's change log, newest first.
func (s *Store) ListChangeLogs(ctx context.Context, datasetID string) ([]models.ChangeLog, error) {
	return s.queryChangeLogs(ctx,
		`SELECT `+changeLogColumns+` FROM change_log WHERE dataset_id = ? ORDER BY created_at DESC`, datasetID)
}

// RecordHistory returns the change log of one record, oldest first.
func (s *Store) RecordHistory(ctx context.Context, recordID uuid.UUID) ([]models.ChangeLog, error) {
	return s.queryChangeLogs(ctx,
		`SELECT `+changeLogColumns+` FROM change_log WHERE record_id = ? ORDER BY created_at`, recordID)
}

// UnpushedChangeLogs returns entries not yet pushed to GitHub.
func (s *Store) UnpushedChangeLogs(ctx context.Context, datasetID string) ([]models.ChangeLog, error) {
	return s.queryChangeLogs(ctx,
		`SELECT `+changeLogColumns+` FROM change_log WHERE dataset_id = ? AND pushed_to_github = ? ORDER BY created_at`, datasetID, false)
}

// MarkPushed flags change logs as pushed.
func (s *Store) MarkPushed(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, 0, len(ids)+1)
	args = append(args, true)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.q.ExecContext(ctx, `UPDATE change_log SET pushed_to_github = ? WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark %d change logs pushed: %w", len(ids), err)
	}
	return nil
}
