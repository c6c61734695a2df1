// services/upload_service.go
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
)

// Result is the outcome of one group of rows in a batch.
type Result struct {
	Reference string
	Lines     []int
	Entity    int64
	Versions  int
	Err       error
}

// BatchReport collects per-group results of an import or an applied update.
// A failed group never stops the batch.
type BatchReport struct {
	Dataset string
	Results []Result
}

func (b *BatchReport) add(r Result) {
	b.Results = append(b.Results, r)
}

// Succeeded counts the groups that were committed.
func (b *BatchReport) Succeeded() int {
	n := 0
	for _, r := range b.Results {
		if r.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the groups that were not committed.
func (b *BatchReport) Failed() []Result {
	var failed []Result
	for _, r := range b.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Exhausted reports whether a group failed because the entity range ran out.
func (b *BatchReport) Exhausted() bool {
	for _, r := range b.Results {
		if errors.Is(r.Err, models.ErrEntityRangeExhausted) {
			return true
		}
	}
	return false
}

// ImportCSV loads an uploaded CSV into a dataset. Rows are grouped by
// reference; each group becomes one record whose rows are replayed oldest
// end-date first, so the row without an end-date is the live state and the
// others form its history. A header naming fields outside the schema rejects
// the whole file.
func (s *Service) ImportCSV(ctx context.Context, datasetID, filename string, r io.Reader) (*BatchReport, error) {
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
		slog.Warn("Service: rejected upload", "dataset", datasetID, "file", filename, "error", err)
		return nil, err
	}

	currentMax, err := s.store.MaxEntity(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountRecords(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	alloc := reconcile.NewDatasetAllocator(ds, currentMax)

	report := &BatchReport{Dataset: datasetID}
	for _, row := range file.Rows {
		if row.Err != nil {
			report.add(Result{Lines: []int{row.Line}, Err: row.Err})
		}
	}

	groups := ingest.GroupByReference(file.Rows)
	for _, group := range groups {
		if e, err := reconcile.ParseEntity(group.Entity()); err == nil && e != nil {
			alloc.Reserve(*e)
		}
	}

	for i, group := range groups {
		result := Result{Reference: group.Reference, Lines: group.Lines()}
		err := s.store.WithTx(ctx, func(tx *database.Store) error {
			return s.importGroup(ctx, tx, ds, alloc, group, count+i+1, &result)
		})
		if err != nil {
			slog.Error("Service: failed to import group", "dataset", datasetID, "reference", group.Reference, "lines", result.Lines, "error", err)
			result.Err = err
		}
		report.add(result)
	}

	if report.Succeeded() > 0 {
		if err := s.store.TouchDataset(ctx, datasetID, s.clock()); err != nil {
			return report, err
		}
	}
	slog.Info("Service: imported CSV", "dataset", datasetID, "file", filename,
		"groups", len(report.Results), "failed", len(report.Failed()))
	return report, nil
}

func (s *Service) importGroup(ctx context.Context, tx *database.Store, ds *models.Dataset, alloc *reconcile.Allocator, group ingest.Group, rowID int, result *Result) error {
	versions, err := group.Versions()
	if err != nil {
		return err
	}
	payloads := make([]*reconcile.Payload, len(versions))
	for i, row := range versions {
		if payloads[i], err = reconcile.NewPayload(row.Values); err != nil {
			return fmt.Errorf("line %d: %w", row.Line, err)
		}
	}

	explicit, err := reconcile.ParseEntity(group.Entity())
	if err != nil {
		return err
	}
	entity, err := alloc.Next(explicit)
	if err != nil {
		return err
	}
	result.Entity = entity

	var record *models.Record
	for i, p := range payloads {
		now := s.clock()
		var change models.ChangeLog
		if i == 0 {
			record, change = reconcile.NewRecord(ds, entity, rowID, p, now)
			err = tx.InsertRecord(ctx, record, now)
		} else {
			var next *models.Record
			next, change = reconcile.ApplyChange(record, p, models.ChangeEdit, now)
			err = tx.UpdateRecord(ctx, next, record.Version, now)
			record = next
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", versions[i].Line, err)
		}
		if err := tx.InsertChangeLog(ctx, &change); err != nil {
			return fmt.Errorf("line %d: %w", versions[i].Line, err)
		}
	}
	result.Versions = len(versions)
	return nil
}
