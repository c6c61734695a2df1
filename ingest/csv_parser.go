// ingest/csv_parser.go
package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gewnthar/registers/models"
	"github.com/gewnthar/registers/utils"
	"github.com/jszwec/csvutil"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is one parsed CSV line. Line counts from 1 and includes the header.
type Row struct {
	Line   int
	Values map[string]string
	Err    error

	keys keyColumns
}

// Reference returns the row's reference column.
func (r Row) Reference() string {
	return strings.TrimSpace(r.keys.Reference)
}

// Entity returns the row's raw entity column.
func (r Row) Entity() string {
	return strings.TrimSpace(r.keys.Entity)
}

// EndDate returns the row's raw end-date column.
func (r Row) EndDate() string {
	return strings.TrimSpace(r.keys.EndDate)
}

// keyColumns are the columns ingest itself relies on. Everything else is
// carried through in Values.
type keyColumns struct {
	Entity    string `csv:"entity,omitempty"`
	Reference string `csv:"reference,omitempty"`
	EndDate   string `csv:"end-date,omitempty"`
}

// File is a parsed upload: its normalized header and rows in file order.
type File struct {
	Header []string
	Rows   []Row
}

// CheckFilename accepts only files with a .csv extension.
func CheckFilename(name string) error {
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return fmt.Errorf("%w: %q", models.ErrInvalidFile, name)
	}
	return nil
}

// CheckHeader rejects a header that names fields outside the dataset schema.
func CheckHeader(header []string, ds *models.Dataset) error {
	var extra []string
	for _, h := range header {
		if !ds.HasField(h) {
			extra = append(extra, h)
		}
	}
	if len(extra) > 0 {
		return models.NewSchemaMismatchError(extra)
	}
	return nil
}

// ParseCSV reads an uploaded CSV. Header names are normalized to field slugs
// and a leading byte order mark is dropped. Rows with the wrong number of
// columns or malformed quoting are returned with Err set so callers can
// report them.
func ParseCSV(reader io.Reader) (*File, error) {
	br := bufio.NewReader(reader)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	raw, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: file is empty", models.ErrInvalidFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	header := make([]string, len(raw))
	for i, h := range raw {
		header[i] = utils.NormalizeKey(h)
	}

	decoder, err := csvutil.NewDecoder(cr, header...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV decoder: %w", err)
	}

	file := &File{Header: header}
	line := 1
	for {
		line++
		var keys keyColumns
		err := decoder.Decode(&keys)
		if err == io.EOF {
			break
		}

		row := Row{Line: line, keys: keys}
		var parseErr *csv.ParseError
		switch {
		case err == nil:
			row.Values = zip(header, decoder.Record())
		case errors.Is(err, csvutil.ErrFieldCount):
			row.Err = fmt.Errorf("line %d: expected %d columns: %w", line, len(header), err)
		case errors.As(err, &parseErr):
			row.Err = fmt.Errorf("line %d: %w", line, parseErr.Err)
		default:
			return nil, fmt.Errorf("failed to decode CSV line %d: %w", line, err)
		}
		file.Rows = append(file.Rows, row)
	}

	slog.Debug("Ingest: parsed CSV", "rows", len(file.Rows), "columns", len(header))
	return file, nil
}

func zip(header, record []string) map[string]string {
	values := make(map[string]string, len(header))
	for i, h := range header {
		values[h] = strings.TrimSpace(record[i])
	}
	return values
}
