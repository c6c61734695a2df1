// services/export_service.go
package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/gewnthar/registers/models"
)

// ExportCSV writes every record of a dataset as CSV, one column per field in
// display order. Null values are written blank.
func (s *Service) ExportCSV(ctx context.Context, datasetID string, w io.Writer) error {
	ds, records, err := s.ListRecords(ctx, datasetID)
	if err != nil {
		return err
	}
	return writeCSV(w, ds, records)
}

func writeCSV(w io.Writer, ds *models.Dataset, records []models.Record) error {
	header := ds.FieldNames()
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header for %s: %w", ds.ID, err)
	}
	row := make([]string, len(header))
	for i := range records {
		values := records[i].ToDict()
		for j, field := range header {
			row[j] = values[field]
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row for entity %d: %w", records[i].Entity, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Service) exportBytes(ctx context.Context, datasetID string) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.ExportCSV(ctx, datasetID, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
