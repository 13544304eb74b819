package registry

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/dxfdiff/internal/domain"
)

func workbookBytes(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestWorkbookAddSkipsExistingPairs(t *testing.T) {
	w := NewWorkbook()
	fixed := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }
	ctx := context.Background()

	added, err := w.Add(ctx, []domain.Relationship{
		{Parent: "AB1234-567-89C", Child: "CD0001-002-03A"},
		{Parent: "AB1234-567-89C", Child: "CD0001-002-03A"},
		{Parent: " AB1234-567-89C ", Child: "EF0001-002-03A", Function: "bracket"},
		{Parent: "", Child: "GH0001-002-03A"},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added != 2 {
		t.Fatalf("expected 2 new rows, got %d", added)
	}

	added, err = w.Add(ctx, []domain.Relationship{{Parent: "AB1234-567-89C", Child: "EF0001-002-03A"}})
	if err != nil || added != 0 {
		t.Fatalf("expected duplicate to be skipped, got %d, %v", added, err)
	}

	rows, _ := w.List(ctx)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %+v", rows)
	}
	if rows[1].Parent != "AB1234-567-89C" || rows[1].Function != "bracket" || !rows[1].Date.Equal(fixed) {
		t.Errorf("unexpected row %+v", rows[1])
	}
}

func TestWorkbookRoundTripKeepsExtraColumns(t *testing.T) {
	data := workbookBytes(t, [][]any{
		{"Child", "Note", "Parent", "Date"},
		{"CD0001-002-03A", "first", "AB1234-567-89C", "2025-11-02"},
		{"EF0001-002-03A", "", "AB1234-567-89C", ""},
		{"", "blank child", "AB1234-567-89C", ""},
	})

	w, err := LoadWorkbook(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rows, _ := w.List(context.Background())
	if len(rows) != 2 {
		t.Fatalf("expected rows without a child to be ignored, got %+v", rows)
	}
	if rows[0].Date.Format(dateLayout) != "2025-11-02" {
		t.Errorf("expected parsed date, got %v", rows[0].Date)
	}

	var out bytes.Buffer
	if err := w.Save(&out); err != nil {
		t.Fatalf("save: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = f.Close() }()
	saved, err := f.GetRows("Sheet1")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	header := saved[0]
	if len(header) != 5 || header[0] != "Parent" || header[1] != "Child" || header[4] != "Note" {
		t.Fatalf("unexpected header %v", header)
	}
	if saved[1][0] != "AB1234-567-89C" || saved[1][2] != "2025-11-02" || saved[1][4] != "first" {
		t.Errorf("unexpected first row %v", saved[1])
	}
}

func TestLoadWorkbookRequiresParentAndChild(t *testing.T) {
	data := workbookBytes(t, [][]any{{"Parent", "Date"}, {"AB1234-567-89C", "2025-01-01"}})
	if _, err := LoadWorkbook(bytes.NewReader(data)); !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("expected ErrMissingColumns, got %v", err)
	}
}

func TestWorkbookSaveFileAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Parent-Child_list.xlsx")

	w, err := OpenWorkbook(path)
	if err != nil {
		t.Fatalf("open missing workbook: %v", err)
	}
	if _, err := w.Add(context.Background(), []domain.Relationship{{Parent: "P", Child: "C"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := w.SaveFile(path); err != nil {
		t.Fatalf("save file: %v", err)
	}

	reopened, err := OpenWorkbook(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	rows, _ := reopened.List(context.Background())
	if len(rows) != 1 || rows[0].Parent != "P" || rows[0].Child != "C" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestPostgresRepositoryRequiresConnection(t *testing.T) {
	repo := NewPostgresRepository(nil)
	if _, err := repo.Add(context.Background(), []domain.Relationship{{Parent: "P", Child: "C"}}); err == nil {
		t.Fatalf("expected error without a connection")
	}
	if err := repo.RecordResult(context.Background(), domain.ComparisonResult{}); err == nil {
		t.Fatalf("expected error without a connection")
	}
}

func TestMultiAddsToEveryRepository(t *testing.T) {
	first, second := NewWorkbook(), NewWorkbook()
	if _, err := second.Add(context.Background(), []domain.Relationship{{Parent: "P", Child: "C"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	multi := Multi{first, second}
	added, err := multi.Add(context.Background(), []domain.Relationship{{Parent: "P", Child: "C"}, {Parent: "P", Child: "D"}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added != 2 {
		t.Errorf("expected the first repository's count, got %d", added)
	}
	rows, _ := second.List(context.Background())
	if len(rows) != 2 {
		t.Errorf("expected the second repository to receive the new row, got %+v", rows)
	}
}
