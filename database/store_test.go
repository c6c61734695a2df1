package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gewnthar/registers/database"
	"github.com/gewnthar/registers/database/dbtest"
	"github.com/gewnthar/registers/models"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

var (
	ctx = context.Background()
	now = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func seedRecord(t *testing.T, s *database.Store, entity int64, reference string) *models.Record {
	t.Helper()
	r := &models.Record{
		ID:        uuid.New(),
		RowID:     int(entity),
		Entity:    entity,
		Prefix:    "tree",
		Reference: reference,
		DatasetID: "tree",
		Data:      map[string]string{"name": "Tree " + reference, "start-date": "2020-01-01"},
		EntryDate: date(2024, 1, 1),
		StartDate: date(2020, 1, 1),
	}
	if err := s.InsertRecord(ctx, r, now); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	return r
}

func TestDatasetRoundTrip(t *testing.T) {
	s := dbtest.NewStore(t)
	ds := dbtest.Dataset()
	ds.EndDate = date(2030, 1, 1)
	dbtest.SeedDataset(t, s, ds)

	got, err := s.GetDataset(ctx, "tree")
	if err != nil {
		t.Fatalf("GetDataset: %v", err)
	}
	if got.Name != "Tree" || got.EntityMinimum != 100 || got.EntityMaximum != 105 {
		t.Errorf("dataset = %+v", got)
	}
	if models.FormatDate(got.EndDate) != "2030-01-01" {
		t.Errorf("EndDate = %v", got.EndDate)
	}
	want := []string{"entity", "name", "prefix", "reference", "organisation", "entry-date", "start-date", "end-date"}
	if diff := cmp.Diff(want, got.FieldNames()); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}

	// Saving again replaces the field list and keeps shared fields.
	ds.Name = "Trees"
	ds.Fields = ds.Fields[:4]
	dbtest.SeedDataset(t, s, ds)
	got, err = s.GetDataset(ctx, "tree")
	if err != nil {
		t.Fatalf("GetDataset: %v", err)
	}
	if got.Name != "Trees" || len(got.Fields) != 4 {
		t.Errorf("after resave: name %q, %d fields", got.Name, len(got.Fields))
	}

	list, err := s.ListDatasets(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListDatasets = %v, %v", list, err)
	}
}

func TestGetDatasetNotFound(t *testing.T) {
	s := dbtest.NewStore(t)
	if _, err := s.GetDataset(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	s := dbtest.NewStore(t)
	dbtest.SeedDataset(t, s, dbtest.Dataset())
	r := seedRecord(t, s, 100, "T1")

	got, err := s.GetRecord(ctx, "tree", r.ID)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if diff := cmp.Diff(r.ToDict(), got.ToDict()); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}

	byEntity, err := s.GetRecordByEntity(ctx, "tree", 100)
	if err != nil || byEntity.ID != r.ID {
		t.Errorf("GetRecordByEntity = %v, %v", byEntity, err)
	}
	if _, err := s.GetRecordByEntity(ctx, "tree", 999); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing entity error = %v", err)
	}
}

func TestRecordEntityUnique(t *testing.T) {
	s := dbtest.NewStore(t)
	dbtest.SeedDataset(t, s, dbtest.Dataset())
	seedRecord(t, s, 100, "T1")

	dup := &models.Record{ID: uuid.New(), Entity: 100, Prefix: "tree", Reference: "T2", DatasetID: "tree"}
	if err := s.InsertRecord(ctx, dup, now); err == nil {
		t.Error("duplicate entity accepted")
	}
}

func TestCountAndMaxEntity(t *testing.T) {
	s := dbtest.NewStore(t)
	dbtest.SeedDataset(t, s, dbtest.Dataset())

	max, err := s.MaxEntity(ctx, "tree")
	if err != nil || max != nil {
		t.Fatalf("MaxEntity on empty dataset = %v, %v", max, err)
	}

	seedRecord(t, s, 103, "T1")
	seedRecord(t, s, 101, "T2")

	max, err = s.MaxEntity(ctx, "tree")
	if err != nil || max == nil || *max != 103 {
		t.Errorf("MaxEntity = %v, %v; want 103", max, err)
	}
	n, err := s.CountRecords(ctx, "tree")
	if err != nil || n != 2 {
		t.Errorf("CountRecords = %d, %v", n, err)
	}

	records, err := s.ListRecords(ctx, "tree")
	if err != nil {
		t.Fatal(err)
	}
	if records[0].Entity != 101 || records[1].Entity != 103 {
		t.Errorf("records not ordered by entity: %d, %d", records[0].Entity, records[1].Entity)
	}
}

func TestUpdateRecordVersion(t *testing.T) {
	s := dbtest.NewStore(t)
	dbtest.SeedDataset(t, s, dbtest.Dataset())
	r := seedRecord(t, s, 100, "T1")

	first := r.Clone()
	first.Data["name"] = "first"
	if err := s.UpdateRecord(ctx, first, 1, now); err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if first.Version != 2 {
		t.Errorf("Version = %d, want 2", first.Version)
	}

	stale := r.Clone()
	stale.Data["name"] = "stale"
	if err := s.UpdateRecord(ctx, stale, 1, now); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("stale write error = %v, want ErrConflict", err)
	}

	got, _ := s.GetRecord(ctx, "tree", r.ID)
	if got.Data["name"] != "first" || got.Version != 2 {
		t.Errorf("stored record = %v version %d", got.Data, got.Version)
	}
}

func TestChangeLogs(t *testing.T) {
	s := dbtest.NewStore(t)
	dbtest.SeedDataset(t, s, dbtest.Dataset())
	r := seedRecord(t, s, 100, "T1")

	add := &models.ChangeLog{
		ID:         uuid.New(),
		ChangeType: models.ChangeAdd,
		Data:       models.ChangeData{To: r.ToDict()},
		DatasetID:  "tree",
		RecordID:   r.ID,
		CreatedAt:  now,
	}
	edit := &models.ChangeLog{
		ID:         uuid.New(),
		ChangeType: models.ChangeEdit,
		Data:       models.ChangeData{From: map[string]string{"name": "a"}, To: map[string]string{"name": "b"}},
		Notes:      "Updated tree:T1. typo",
		DatasetID:  "tree",
		RecordID:   r.ID,
		CreatedAt:  now.Add(time.Minute),
	}
	for _, c := range []*models.ChangeLog{add, edit} {
		if err := s.InsertChangeLog(ctx, c); err != nil {
			t.Fatalf("InsertChangeLog: %v", err)
		}
	}

	history, err := s.RecordHistory(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].ChangeType != models.ChangeAdd || history[1].Notes != edit.Notes {
		t.Fatalf("history = %+v", history)
	}
	if len(history[0].Data.From) != 0 || history[0].Data.To["reference"] != "T1" {
		t.Errorf("ADD data = %+v", history[0].Data)
	}

	newestFirst, err := s.ListChangeLogs(ctx, "tree")
	if err != nil || newestFirst[0].ID != edit.ID {
		t.Errorf("ListChangeLogs = %v, %v", newestFirst, err)
	}

	if err := s.MarkPushed(ctx, []uuid.UUID{add.ID}); err != nil {
		t.Fatal(err)
	}
	unpushed, err := s.UnpushedChangeLogs(ctx, "tree")
	if err != nil {
		t.Fatal(err)
	}
	if len(unpushed) != 1 || unpushed[0].ID != edit.ID {
		t.Errorf("unpushed = %+v", unpushed)
	}
}

func TestUpdates(t *testing.T) {
	s := dbtest.NewStore(t)
	dbtest.SeedDataset(t, s, dbtest.Dataset())

	u := &models.Update{
		ID:        uuid.New(),
		Name:      "trees.csv",
		DatasetID: "tree",
		Status:    models.UpdatePending,
		Records: []models.UpdateRecord{
			{ID: uuid.New(), Position: 1, Data: map[string]string{"reference": "T1"}},
			{ID: uuid.New(), Position: 2, Data: map[string]string{"reference": "T2"}},
		},
	}
	if err := s.InsertUpdate(ctx, u, now); err != nil {
		t.Fatalf("InsertUpdate: %v", err)
	}

	ur := u.Records[1]
	ur.Kind = models.RowUpdated
	ur.Notes = []string{"name changed from 'a' to 'b'"}
	ur.Processed = true
	if err := s.SaveUpdateRecord(ctx, &ur); err != nil {
		t.Fatal(err)
	}
	if err := s.SetUpdateStatus(ctx, u.ID, models.UpdateComplete, now); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetUpdate(ctx, "tree", u.ID)
	if err != nil {
		t.Fatalf("GetUpdate: %v", err)
	}
	if got.Status != models.UpdateComplete || got.Name != "trees.csv" || len(got.Records) != 2 {
		t.Fatalf("update = %+v", got)
	}
	if got.Records[0].Kind != "" || got.Records[0].Processed || got.Records[0].Notes != nil {
		t.Errorf("untouched row = %+v", got.Records[0])
	}
	if diff := cmp.Diff(ur, got.Records[1]); diff != "" {
		t.Errorf("saved row mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.GetUpdate(ctx, "other", u.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("update from another dataset error = %v", err)
	}
	pending, err := s.ListUpdates(ctx, "tree", models.UpdatePending)
	if err != nil || len(pending) != 0 {
		t.Errorf("pending = %v, %v", pending, err)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	s := dbtest.NewStore(t)
	dbtest.SeedDataset(t, s, dbtest.Dataset())

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *database.Store) error {
		seedRecord(t, tx, 100, "T1")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx error = %v", err)
	}
	n, _ := s.CountRecords(ctx, "tree")
	if n != 0 {
		t.Errorf("record survived rollback: %d", n)
	}
}
