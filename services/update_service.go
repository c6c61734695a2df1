// services/update_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gewnthar/registers/database"
	"github.com/gewnthar/registers/ingest"
	"github.com/gewnthar/registers/models"
	"github.com/gewnthar/registers/reconcile"
	"github.com/google/uuid"
)

// CreateUpdate stores an uploaded CSV of proposed changes as a pending
// update. Nothing is applied until ApplyUpdate.
func (s *Service) CreateUpdate(ctx context.Context, datasetID, filename string, r io.Reader) (*models.Update, error) {
	if err := ingest.CheckFilename(filename); err != nil {
		return nil, err
	}
	ds, err := openDataset(ctx, s.store, datasetID)
	if err != nil {
		return nil, err
	}
	file, err := ingest.ParseCSV(r)
	if err != nil {
		return nil, err
	}
	if err := ingest.CheckHeader(file.Header, ds); err != nil {
		return nil, err
	}

	u := &models.Update{
		ID:        uuid.New(),
		Name:      filename,
		DatasetID: datasetID,
		Status:    models.UpdatePending,
	}
	for i, row := range file.Rows {
		if row.Err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidFile, row.Err)
		}
		u.Records = append(u.Records, models.UpdateRecord{
			ID:       uuid.New(),
			Position: i + 1,
			Data:     row.Values,
		})
	}

	if err := s.store.InsertUpdate(ctx, u, s.clock()); err != nil {
		return nil, err
	}
	slog.Info("Service: created update", "dataset", datasetID, "update", u.ID, "rows", len(u.Records))
	return u, nil
}

// ListPendingUpdates returns the dataset's updates still awaiting review.
func (s *Service) ListPendingUpdates(ctx context.Context, datasetID string) ([]models.Update, error) {
	return s.store.ListUpdates(ctx, datasetID, models.UpdatePending)
}

func (s *Service) pendingUpdate(ctx context.Context, tx *database.Store, datasetID string, id uuid.UUID) (*models.Update, error) {
	u, err := tx.GetUpdate(ctx, datasetID, id)
	if err != nil {
		return nil, err
	}
	if !u.Pending() {
		return nil, fmt.Errorf("update %s is %s: %w", id, u.Status, models.ErrUpdateNotPending)
	}
	return u, nil
}

// classify compares one update row with the record currently holding its
// entity.
func classify(ctx context.Context, tx *database.Store, ds *models.Dataset, ur *models.UpdateRecord) (reconcile.Classification, *models.Record, error) {
	entity, err := reconcile.ParseEntity(ur.Entity())
	if err != nil {
		return reconcile.InvalidEntity(), nil, nil
	}

	var current *models.Record
	if entity != nil {
		current, err = tx.GetRecordByEntity(ctx, ds.ID, *entity)
		if errors.Is(err, models.ErrNotFound) {
			current, err = nil, nil
		}
		if err != nil {
			return reconcile.Classification{}, nil, err
		}
	}
	return reconcile.Classify(ur.Data, current, ds.FieldNames()), current, nil
}

// PreviewUpdate classifies every unprocessed row of a pending update against
// the current records and stores the result on the row. It writes no change
// log.
func (s *Service) PreviewUpdate(ctx context.Context, datasetID string, id uuid.UUID) (*models.Dataset, *models.Update, error) {
	var ds *models.Dataset
	var u *models.Update
	err := s.store.WithTx(ctx, func(tx *database.Store) error {
		var err error
		if ds, err = tx.GetDataset(ctx, datasetID); err != nil {
			return err
		}
		if u, err = s.pendingUpdate(ctx, tx, datasetID, id); err != nil {
			return err
		}

		for i := range u.Records {
			ur := &u.Records[i]
			if ur.Processed {
				continue
			}
			c, _, err := classify(ctx, tx, ds, ur)
			if err != nil {
				return err
			}
			ur.Kind, ur.Notes = c.Kind, c.Notes
			if err := tx.SaveUpdateRecord(ctx, ur); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ds, u, nil
}

// ApplyUpdate commits the selected rows of a pending update. Rows are
// classified again against the current state: updated rows become edits,
// ended rows archive their record and new rows create one. Invalid and
// unchanged rows are skipped even when selected. The update ends COMPLETE,
// or INCOMPLETE when a selected row failed.
func (s *Service) ApplyUpdate(ctx context.Context, datasetID string, id uuid.UUID, selected []uuid.UUID) (*BatchReport, error) {
	ds, err := openDataset(ctx, s.store, datasetID)
	if err != nil {
		return nil, err
	}
	u, err := s.pendingUpdate(ctx, s.store, datasetID, id)
	if err != nil {
		return nil, err
	}

	currentMax, err := s.store.MaxEntity(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	alloc := reconcile.NewDatasetAllocator(ds, currentMax)

	chosen := make(map[uuid.UUID]bool, len(selected))
	for _, rid := range selected {
		chosen[rid] = true
	}
	for _, ur := range u.Records {
		if ur.Processed || !chosen[ur.ID] {
			continue
		}
		if e, err := reconcile.ParseEntity(ur.Entity()); err == nil && e != nil {
			alloc.Reserve(*e)
		}
	}
	notes := fmt.Sprintf("Applied from bulk update %s", u.ID)

	report := &BatchReport{Dataset: datasetID}
	for i := range u.Records {
		ur := &u.Records[i]
		if ur.Processed || !chosen[ur.ID] {
			continue
		}

		result := Result{Reference: ur.Data["reference"], Lines: []int{ur.Position}}
		applied := false
		err := s.store.WithTx(ctx, func(tx *database.Store) error {
			c, current, err := classify(ctx, tx, ds, ur)
			if err != nil {
				return err
			}
			ur.Kind, ur.Notes = c.Kind, c.Notes
			if !c.Kind.Actionable() {
				return tx.SaveUpdateRecord(ctx, ur)
			}

			values := make(map[string]string, len(ur.Data)+1)
			for k, v := range ur.Data {
				values[k] = v
			}
			values["edit-notes"] = notes
			p, err := reconcile.NewPayload(values)
			if err != nil {
				return err
			}

			now := s.clock()
			var record *models.Record
			var change models.ChangeLog
			switch c.Kind {
			case models.RowNew:
				explicit, _ := reconcile.ParseEntity(ur.Entity())
				entity, err := alloc.Next(explicit)
				if err != nil {
					return err
				}
				count, err := tx.CountRecords(ctx, datasetID)
				if err != nil {
					return err
				}
				record, change = reconcile.NewRecord(ds, entity, count+1, p, now)
				err = tx.InsertRecord(ctx, record, now)
				if err != nil {
					return err
				}
			case models.RowUpdated, models.RowEnded:
				kind := models.ChangeEdit
				if c.Kind == models.RowEnded {
					kind = models.ChangeArchive
				}
				record, change = reconcile.ApplyChange(current, p, kind, now)
				if err := tx.UpdateRecord(ctx, record, current.Version, now); err != nil {
					return err
				}
			}
			if err := tx.InsertChangeLog(ctx, &change); err != nil {
				return err
			}

			ur.Processed = true
			result.Entity = record.Entity
			applied = true
			return tx.SaveUpdateRecord(ctx, ur)
		})
		if err != nil {
			ur.Processed = false
			slog.Error("Service: failed to apply update row", "dataset", datasetID, "update", u.ID, "position", ur.Position, "error", err)
			result.Err = err
			report.add(result)
			continue
		}
		if applied {
			report.add(result)
		}
	}

	status := models.UpdateComplete
	if len(report.Failed()) > 0 {
		status = models.UpdateIncomplete
	}
	now := s.clock()
	if err := s.store.SetUpdateStatus(ctx, u.ID, status, now); err != nil {
		return report, err
	}
	if report.Succeeded() > 0 {
		if err := s.store.TouchDataset(ctx, datasetID, now); err != nil {
			return report, err
		}
	}
	slog.Info("Service: applied update", "dataset", datasetID, "update", u.ID, "status", status,
		"applied", report.Succeeded(), "failed", len(report.Failed()))
	return report, nil
}

// CancelUpdate abandons a pending update.
func (s *Service) CancelUpdate(ctx context.Context, datasetID string, id uuid.UUID) error {
	return s.store.WithTx(ctx, func(tx *database.Store) error {
		if _, err := s.pendingUpdate(ctx, tx, datasetID, id); err != nil {
			return err
		}
		slog.Info("Service: cancelled update", "dataset", datasetID, "update", id)
		return tx.SetUpdateStatus(ctx, id, models.UpdateCancelled, s.clock())
	})
}
