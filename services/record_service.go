// services/record_service.go
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gewnthar/registers/database"
	"github.com/gewnthar/registers/models"
	"github.com/gewnthar/registers/reconcile"
	"github.com/google/uuid"
)

func (s *Service) ListDatasets(ctx context.Context) ([]models.Dataset, error) {
	return s.store.ListDatasets(ctx)
}

func (s *Service) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	return s.store.GetDataset(ctx, id)
}

// ListRecords returns the dataset and its records ordered by entity.
func (s *Service) ListRecords(ctx context.Context, datasetID string) (*models.Dataset, []models.Record, error) {
	ds, err := s.store.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, nil, err
	}
	records, err := s.store.ListRecords(ctx, datasetID)
	if err != nil {
		return nil, nil, err
	}
	return ds, records, nil
}

func (s *Service) GetRecord(ctx context.Context, datasetID string, id uuid.UUID) (*models.Record, error) {
	return s.store.GetRecord(ctx, datasetID, id)
}

// History returns a record's change log, oldest first.
func (s *Service) History(ctx context.Context, datasetID string, id uuid.UUID) (*models.Record, []models.ChangeLog, error) {
	r, err := s.store.GetRecord(ctx, datasetID, id)
	if err != nil {
		return nil, nil, err
	}
	logs, err := s.store.RecordHistory(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return r, logs, nil
}

// ChangeLog returns a dataset's change log, newest first.
func (s *Service) ChangeLog(ctx context.Context, datasetID string) ([]models.ChangeLog, error) {
	if _, err := s.store.GetDataset(ctx, datasetID); err != nil {
		return nil, err
	}
	return s.store.ListChangeLogs(ctx, datasetID)
}

// openDataset loads a dataset that may still be changed.
func openDataset(ctx context.Context, tx *database.Store, datasetID string) (*models.Dataset, error) {
	ds, err := tx.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if ds.Ended() {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, models.ErrDatasetEnded)
	}
	return ds, nil
}

// AddRecord creates a record from form values. The entity is taken from the
// values when given, otherwise the next free number in the dataset range.
func (s *Service) AddRecord(ctx context.Context, datasetID string, values map[string]string) (*models.Record, error) {
	p, err := reconcile.NewPayload(values)
	if err != nil {
		return nil, err
	}
	explicit, err := reconcile.ParseEntity(values["entity"])
	if err != nil {
		return nil, err
	}

	var record *models.Record
	err = s.store.WithTx(ctx, func(tx *database.Store) error {
		ds, err := openDataset(ctx, tx, datasetID)
		if err != nil {
			return err
		}
		currentMax, err := tx.MaxEntity(ctx, datasetID)
		if err != nil {
			return err
		}
		count, err := tx.CountRecords(ctx, datasetID)
		if err != nil {
			return err
		}
		entity, err := reconcile.NewDatasetAllocator(ds, currentMax).Next(explicit)
		if err != nil {
			return err
		}

		now := s.clock()
		r, change := reconcile.NewRecord(ds, entity, count+1, p, now)
		if err := tx.InsertRecord(ctx, r, now); err != nil {
			return err
		}
		if err := tx.InsertChangeLog(ctx, &change); err != nil {
			return err
		}
		if err := tx.TouchDataset(ctx, datasetID, now); err != nil {
			return err
		}
		record = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Service: added record", "dataset", datasetID, "entity", record.Entity, "reference", record.Reference)
	return record, nil
}

// EditRecord applies form values to a live record. version is the record
// version the form was rendered from; 0 skips the check.
func (s *Service) EditRecord(ctx context.Context, datasetID string, id uuid.UUID, version int, values map[string]string) (*models.Record, error) {
	return s.change(ctx, datasetID, id, version, values, models.ChangeEdit)
}

// ArchiveRecord ends a live record on the posted end-date, or today.
func (s *Service) ArchiveRecord(ctx context.Context, datasetID string, id uuid.UUID, version int, values map[string]string) (*models.Record, error) {
	return s.change(ctx, datasetID, id, version, values, models.ChangeArchive)
}

func (s *Service) change(ctx context.Context, datasetID string, id uuid.UUID, version int, values map[string]string, kind models.ChangeType) (*models.Record, error) {
	p, err := reconcile.NewPayload(values)
	if err != nil {
		return nil, err
	}

	var record *models.Record
	err = s.store.WithTx(ctx, func(tx *database.Store) error {
		if _, err := openDataset(ctx, tx, datasetID); err != nil {
			return err
		}
		current, err := tx.GetRecord(ctx, datasetID, id)
		if err != nil {
			return err
		}
		if current.Ended() {
			return fmt.Errorf("%s: %w", current.Curie(), models.ErrRecordEnded)
		}
		if version != 0 && version != current.Version {
			return fmt.Errorf("%s edited from version %d, now %d: %w", current.Curie(), version, current.Version, models.ErrConflict)
		}

		now := s.clock()
		next, change := reconcile.ApplyChange(current, p, kind, now)
		if err := tx.UpdateRecord(ctx, next, current.Version, now); err != nil {
			return err
		}
		if err := tx.InsertChangeLog(ctx, &change); err != nil {
			return err
		}
		record = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Service: changed record", "dataset", datasetID, "change", kind, "record", record.Curie(), "version", record.Version)
	return record, nil
}

// UnarchiveRecord clears the end date of an archived record.
func (s *Service) UnarchiveRecord(ctx context.Context, datasetID string, id uuid.UUID, notes string) (*models.Record, error) {
	var record *models.Record
	err := s.store.WithTx(ctx, func(tx *database.Store) error {
		if _, err := openDataset(ctx, tx, datasetID); err != nil {
			return err
		}
		current, err := tx.GetRecord(ctx, datasetID, id)
		if err != nil {
			return err
		}

		now := s.clock()
		next, change, err := reconcile.Unarchive(current, notes, now)
		if err != nil {
			return err
		}
		if err := tx.UpdateRecord(ctx, next, current.Version, now); err != nil {
			return err
		}
		if err := tx.InsertChangeLog(ctx, &change); err != nil {
			return err
		}
		record = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Service: unarchived record", "dataset", datasetID, "record", record.Curie())
	return record, nil
}
