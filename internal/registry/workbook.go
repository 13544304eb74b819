package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/dxfdiff/internal/domain"
)

const (
	workbookSheet = "Sheet1"
	dateLayout    = "2006-01-02"
)

var standardColumns = []string{"Parent", "Child", "Date", "Function"}

// ErrMissingColumns is returned when a registry workbook lacks the Parent or Child column.
var ErrMissingColumns = errors.New("registry workbook requires Parent and Child columns")

type workbookRow struct {
	rel   domain.Relationship
	extra []string
}

// Workbook is a relationship registry kept as a spreadsheet. Columns other than the standard
// four are carried through unchanged.
type Workbook struct {
	mu    sync.Mutex
	extra []string
	rows  []workbookRow
	index map[key]bool
	now   func() time.Time
}

// NewWorkbook returns an empty registry.
func NewWorkbook() *Workbook {
	return &Workbook{index: map[key]bool{}, now: time.Now}
}

// LoadWorkbook reads the first sheet of a registry workbook.
func LoadWorkbook(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("registry workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read registry rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrMissingColumns
	}

	columns := map[string]int{}
	w := NewWorkbook()
	var extraColumns []int
	for i, name := range rows[0] {
		name = strings.TrimSpace(name)
		matched := false
		for _, standard := range standardColumns {
			if strings.EqualFold(name, standard) {
				if _, seen := columns[standard]; !seen {
					columns[standard] = i
				}
				matched = true
				break
			}
		}
		if !matched && name != "" {
			w.extra = append(w.extra, name)
			extraColumns = append(extraColumns, i)
		}
	}
	parentCol, hasParent := columns["Parent"]
	childCol, hasChild := columns["Child"]
	if !hasParent || !hasChild {
		return nil, ErrMissingColumns
	}

	cell := func(row []string, column string) string {
		i, ok := columns[column]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	for _, row := range rows[1:] {
		rel := domain.Relationship{
			Parent:   cellAt(row, parentCol),
			Child:    cellAt(row, childCol),
			Date:     parseDate(cell(row, "Date")),
			Function: cell(row, "Function"),
		}
		k := keyOf(rel)
		if !k.valid() || w.index[k] {
			continue
		}
		extra := make([]string, len(extraColumns))
		for j, col := range extraColumns {
			extra[j] = cellAt(row, col)
		}
		w.index[k] = true
		w.rows = append(w.rows, workbookRow{rel: rel, extra: extra})
	}
	return w, nil
}

// OpenWorkbook loads the registry at path, or returns an empty one when the file does not exist.
func OpenWorkbook(path string) (*Workbook, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewWorkbook(), nil
	}
	if err != nil {
		return nil, &domain.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	return LoadWorkbook(f)
}

func (w *Workbook) List(ctx context.Context) ([]domain.Relationship, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.Relationship, len(w.rows))
	for i, row := range w.rows {
		out[i] = row.rel
	}
	return out, nil
}

// Add appends the relationships whose (parent, child) pair is not registered yet. Rows without a
// date are stamped with today's date.
func (w *Workbook) Add(ctx context.Context, rows []domain.Relationship) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	added := 0
	for _, rel := range rows {
		k := keyOf(rel)
		if !k.valid() || w.index[k] {
			continue
		}
		rel.Parent, rel.Child = k.parent, k.child
		if rel.Date.IsZero() {
			rel.Date = w.now()
		}
		w.index[k] = true
		w.rows = append(w.rows, workbookRow{rel: rel, extra: make([]string, len(w.extra))})
		added++
	}
	return added, nil
}

// Save writes the registry as a workbook with the standard columns first.
func (w *Workbook) Save(out io.Writer) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header := make([]any, 0, len(standardColumns)+len(w.extra))
	for _, name := range standardColumns {
		header = append(header, name)
	}
	for _, name := range w.extra {
		header = append(header, name)
	}
	if err := f.SetSheetRow(workbookSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write registry header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		_ = f.SetCellStyle(workbookSheet, "A1", last, style)
	}

	for i, row := range w.rows {
		values := []any{row.rel.Parent, row.rel.Child, formatDate(row.rel.Date), row.rel.Function}
		for _, value := range row.extra {
			values = append(values, value)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(workbookSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write registry row %d: %w", i+2, err)
		}
	}
	_ = f.SetColWidth(workbookSheet, "A", "B", 22)
	_ = f.SetColWidth(workbookSheet, "C", "C", 12)

	if err := f.Write(out); err != nil {
		return fmt.Errorf("failed to write registry workbook: %w", err)
	}
	return nil
}

// SaveFile writes the registry to path through a temporary file in the same directory.
func (w *Workbook) SaveFile(path string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".registry-*.xlsx")
	if err != nil {
		return &domain.IOError{Op: "create", Path: path, Err: err}
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if err = w.Save(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return &domain.IOError{Op: "close", Path: path, Err: err}
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return &domain.IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

var dateLayouts = []string{dateLayout, "2006/01/02", "2006-01-02 15:04:05", "01-02-06", "1/2/06", "1/2/2006"}

func parseDate(value string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
