package services_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/gewnthar/registers/models"
	"github.com/gewnthar/registers/services"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

const updateHeader = "entity,name,prefix,reference,organisation,entry-date,start-date,end-date\n"

// seedForUpdate adds T1 (100), T2 (101) and T3 (102).
func seedForUpdate(t *testing.T, svc *services.Service) {
	t.Helper()
	mustAdd(t, svc, oak())
	mustAdd(t, svc, map[string]string{"reference": "T2", "name": "Birch", "start-date": "2020-01-01"})
	mustAdd(t, svc, map[string]string{"reference": "T3", "name": "Elm", "start-date": "2020-01-01"})
}

func createUpdate(t *testing.T, svc *services.Service) *models.Update {
	t.Helper()
	csv := updateHeader +
		"100,Oak tree,tree,T1,local-authority:ABC,2024-06-01,2020-01-01,\n" +
		",Ash,,T9,,,2021-01-01,\n" +
		"101,Birch,tree,T2,,2024-06-01,2020-01-01,2024-05-01\n" +
		"102,Elm,tree,T3,,2024-06-01,2020-01-01,\n" +
		"abc,Yew,tree,T4,,,,\n"
	u, err := svc.CreateUpdate(ctx, "tree", "changes.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("CreateUpdate: %v", err)
	}
	return u
}

func kinds(u *models.Update) []models.RowKind {
	out := make([]models.RowKind, len(u.Records))
	for i, r := range u.Records {
		out[i] = r.Kind
	}
	return out
}

func TestPreviewUpdate(t *testing.T) {
	svc, store := setup(t)
	seedForUpdate(t, svc)
	u := createUpdate(t, svc)

	_, preview, err := svc.PreviewUpdate(ctx, "tree", u.ID)
	if err != nil {
		t.Fatalf("PreviewUpdate: %v", err)
	}
	want := []models.RowKind{models.RowUpdated, models.RowNew, models.RowEnded, models.RowNotUpdated, models.RowInvalid}
	if diff := cmp.Diff(want, kinds(preview)); diff != "" {
		t.Errorf("kinds (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"name changed from 'Oak' to 'Oak tree'"}, preview.Records[0].Notes); diff != "" {
		t.Errorf("notes (-want +got):\n%s", diff)
	}

	stored, _ := store.GetUpdate(ctx, "tree", u.ID)
	if diff := cmp.Diff(want, kinds(stored)); diff != "" {
		t.Errorf("stored kinds (-want +got):\n%s", diff)
	}
	logs, _ := store.ListChangeLogs(ctx, "tree")
	if len(logs) != 3 {
		t.Errorf("preview wrote change logs: %d entries", len(logs))
	}
}

func TestApplyUpdate(t *testing.T) {
	svc, store := setup(t)
	seedForUpdate(t, svc)
	u := createUpdate(t, svc)

	var selected []uuid.UUID
	for _, r := range u.Records[:4] {
		selected = append(selected, r.ID)
	}
	report, err := svc.ApplyUpdate(ctx, "tree", u.ID, selected)
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if report.Succeeded() != 3 || len(report.Failed()) != 0 {
		t.Errorf("report = %+v", report)
	}

	t1, _ := store.GetRecordByEntity(ctx, "tree", 100)
	if t1.Data["name"] != "Oak tree" {
		t.Errorf("T1 name = %q", t1.Data["name"])
	}
	history, _ := store.RecordHistory(ctx, t1.ID)
	if notes := history[len(history)-1].Notes; notes != "Updated tree:T1. Applied from bulk update "+u.ID.String() {
		t.Errorf("notes = %q", notes)
	}

	t2, _ := store.GetRecordByEntity(ctx, "tree", 101)
	if models.FormatDate(t2.EndDate) != "2024-05-01" {
		t.Errorf("T2 end date = %v", t2.EndDate)
	}
	history, _ = store.RecordHistory(ctx, t2.ID)
	if history[len(history)-1].ChangeType != models.ChangeArchive {
		t.Errorf("T2 change = %s", history[len(history)-1].ChangeType)
	}

	t9, err := store.GetRecordByEntity(ctx, "tree", 103)
	if err != nil || t9.Reference != "T9" || t9.RowID != 4 {
		t.Errorf("new record = %+v, %v", t9, err)
	}

	done, _ := store.GetUpdate(ctx, "tree", u.ID)
	if done.Status != models.UpdateComplete {
		t.Errorf("status = %s", done.Status)
	}
	processed := []bool{}
	for _, r := range done.Records {
		processed = append(processed, r.Processed)
	}
	if diff := cmp.Diff([]bool{true, true, true, false, false}, processed); diff != "" {
		t.Errorf("processed (-want +got):\n%s", diff)
	}

	if _, err := svc.ApplyUpdate(ctx, "tree", u.ID, selected); !errors.Is(err, models.ErrUpdateNotPending) {
		t.Errorf("second apply error = %v", err)
	}
}

func TestApplyUpdateIncomplete(t *testing.T) {
	svc, store := setup(t)
	seedForUpdate(t, svc)

	csv := updateHeader + ",Ash,,T9,,,2021-01-01,\n,Yew,,T10,,,not-a-date,\n"
	u, err := svc.CreateUpdate(ctx, "tree", "changes.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatal(err)
	}
	report, err := svc.ApplyUpdate(ctx, "tree", u.ID, []uuid.UUID{u.Records[0].ID, u.Records[1].ID})
	if err != nil {
		t.Fatal(err)
	}
	if report.Succeeded() != 1 || len(report.Failed()) != 1 || !errors.Is(report.Failed()[0].Err, models.ErrInvalidDate) {
		t.Errorf("report = %+v", report)
	}
	done, _ := store.GetUpdate(ctx, "tree", u.ID)
	if done.Status != models.UpdateIncomplete || done.Records[1].Processed {
		t.Errorf("update = %s, second row processed %v", done.Status, done.Records[1].Processed)
	}
}

func TestApplyUpdateAutoEntitySkipsLaterExplicit(t *testing.T) {
	svc, store := setup(t)
	seedForUpdate(t, svc)

	csv := updateHeader + ",Ash,,T9,,,2021-01-01,\n103,Yew,,T10,,,2021-01-01,\n"
	u, err := svc.CreateUpdate(ctx, "tree", "changes.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatal(err)
	}
	report, err := svc.ApplyUpdate(ctx, "tree", u.ID, []uuid.UUID{u.Records[0].ID, u.Records[1].ID})
	if err != nil {
		t.Fatal(err)
	}
	if report.Succeeded() != 2 || len(report.Failed()) != 0 {
		t.Fatalf("report = %+v", report)
	}

	records, _ := store.ListRecords(ctx, "tree")
	got := map[string]int64{}
	for _, r := range records {
		got[r.Reference] = r.Entity
	}
	if got["T10"] != 103 || got["T9"] != 104 {
		t.Errorf("entities = %v, want T10=103 T9=104", got)
	}
}

func TestCancelUpdate(t *testing.T) {
	svc, store := setup(t)
	seedForUpdate(t, svc)
	u := createUpdate(t, svc)

	if err := svc.CancelUpdate(ctx, "tree", u.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetUpdate(ctx, "tree", u.ID)
	if got.Status != models.UpdateCancelled {
		t.Errorf("status = %s", got.Status)
	}
	if _, _, err := svc.PreviewUpdate(ctx, "tree", u.ID); !errors.Is(err, models.ErrUpdateNotPending) {
		t.Errorf("preview cancelled update error = %v", err)
	}
	if err := svc.CancelUpdate(ctx, "tree", uuid.New()); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("cancel unknown update error = %v", err)
	}
}

func TestCreateUpdateSchemaMismatch(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.CreateUpdate(ctx, "tree", "changes.csv", strings.NewReader("entity,height\n100,3\n"))
	if !errors.Is(err, models.ErrSchemaMismatch) {
		t.Errorf("error = %v, want ErrSchemaMismatch", err)
	}
}
