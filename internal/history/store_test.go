package history

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sqlite, err := NewSQLiteStore(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"xlsx":   NewSheetStore(filepath.Join(dir, "applications.xlsx")),
		"sqlite": sqlite,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	records := []Record{
		rec("Globex", "Analyst", StatusRejected, "2024-02-01", "08:30"),
		rec("Acme", "Engineer", StatusApplied, "2024-01-10", "10:00"),
		{Company: "Hooli", Role: "Unknown", Status: StatusApplied, Phrase: "unknown"},
	}

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			empty, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("Load empty: %v", err)
			}
			if len(empty) != 0 {
				t.Fatalf("new store has %d records", len(empty))
			}

			if err := store.Save(ctx, records); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !reflect.DeepEqual(got, records) {
				t.Errorf("got %+v\nwant %+v", got, records)
			}
		})
	}
}

func TestMergeIntoAndSetStatus(t *testing.T) {
	ctx := context.Background()

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			batch := []Record{
				rec("Acme", "Engineer", StatusApplied, "2024-01-10", "10:00"),
				rec("Initech", "Developer", StatusInterview, "2024-01-15", "12:00"),
			}
			_, added, err := MergeInto(ctx, store, batch)
			if err != nil {
				t.Fatalf("MergeInto: %v", err)
			}
			if added != 2 {
				t.Errorf("added = %d, want 2", added)
			}

			key := batch[0].Key()
			if err := SetStatus(ctx, store, key, StatusOffer); err != nil {
				t.Fatalf("SetStatus: %v", err)
			}

			// Re-extracting the same email must not undo the user's edit
			merged, added, err := MergeInto(ctx, store, batch)
			if err != nil {
				t.Fatalf("MergeInto again: %v", err)
			}
			if added != 0 {
				t.Errorf("second merge added %d", added)
			}
			for _, r := range merged {
				if r.Key() == key && r.Status != StatusOffer {
					t.Errorf("status = %q, want Offer", r.Status)
				}
			}

			err = SetStatus(ctx, store, Key{Company: "Nobody"}, StatusOffer)
			if !errors.Is(err, ErrRecordNotFound) {
				t.Errorf("got %v, want ErrRecordNotFound", err)
			}
		})
	}
}

func TestSheetStoreFormatting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "applications.xlsx")
	store := NewSheetStore(path)
	records := []Record{
		rec("Acme", "Engineer", StatusApplied, "2024-01-10", "10:00"),
		rec("Globex", "Analyst", StatusRejected, "2024-02-01", "08:30"),
	}
	if err := store.Save(context.Background(), records); err != nil {
		t.Fatalf("Save: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if !reflect.DeepEqual(rows[0], Columns) {
		t.Errorf("header = %v, want %v", rows[0], Columns)
	}

	for cell, want := range map[string]string{"C2": "C6EFCE", "C3": "FFC7CE"} {
		id, err := f.GetCellStyle(SheetName, cell)
		if err != nil {
			t.Fatalf("GetCellStyle(%s): %v", cell, err)
		}
		style, err := f.GetStyle(id)
		if err != nil {
			t.Fatalf("GetStyle(%d): %v", id, err)
		}
		if len(style.Fill.Color) == 0 || !strings.HasSuffix(strings.ToUpper(style.Fill.Color[0]), want) {
			t.Errorf("%s fill = %v, want %s", cell, style.Fill.Color, want)
		}
	}

	validations, err := f.GetDataValidations(SheetName)
	if err != nil {
		t.Fatalf("GetDataValidations: %v", err)
	}
	if len(validations) != 1 || validations[0].Sqref != "C2:C3" {
		t.Errorf("unexpected validations: %+v", validations)
	}
}

func TestSheetStoreReorderedColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edited.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	f.SetSheetRow(sheet, "A1", &[]interface{}{"Status", "Company", "Job Role", "Notes"})
	f.SetSheetRow(sheet, "A2", &[]interface{}{"Offer", "Acme", "Engineer", "great team"})
	f.SetSheetRow(sheet, "A4", &[]interface{}{"Applied", "Globex"})
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	got, err := NewSheetStore(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []Record{
		{Company: "Acme", Role: "Engineer", Status: StatusOffer},
		{Company: "Globex", Status: StatusApplied},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestFillColor(t *testing.T) {
	tests := map[string]string{
		"Applied":             "C6EFCE",
		"interview scheduled": "FFEB9C",
		"REJECTED":            "FFC7CE",
		"Offer":               "BDD7EE",
		"Ghosted":             "",
	}
	for status, want := range tests {
		if got := FillColor(status); got != want {
			t.Errorf("FillColor(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open("parquet", filepath.Join(dir, "x")); err == nil {
		t.Error("expected error for unknown backend")
	}
	s, err := Open("xlsx", filepath.Join(dir, "a.xlsx"))
	if err != nil {
		t.Fatalf("Open xlsx: %v", err)
	}
	if _, ok := s.(*SheetStore); !ok {
		t.Errorf("got %T, want *SheetStore", s)
	}
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	stores := openStores(t)
	src, dst := stores["sqlite"], stores["xlsx"]

	if err := src.Save(ctx, []Record{
		rec("Acme", "Engineer", StatusOffer, "2024-01-10", "10:00"),
		rec("Globex", "Analyst", StatusRejected, "2024-02-01", "08:30"),
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := dst.Save(ctx, []Record{rec("Acme", "Engineer", StatusApplied, "2024-01-10", "10:00")}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	n, err := Copy(ctx, dst, src)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if n != 1 {
		t.Errorf("copied %d records, want 1", n)
	}

	got, err := dst.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[0].Company != "Globex" || got[1].Status != StatusApplied {
		t.Errorf("target = %+v", got)
	}
}
