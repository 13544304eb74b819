// Package report renders comparison results as a workbook and as a downloadable archive.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/dxfdiff/internal/domain"
)

// Sheet names of the results workbook.
const (
	SheetSummary   = "Summary"
	SheetChanged   = "ChangedLabels"
	SheetUnchanged = "UnchangedLabels"
	SheetLegend    = "Legend"
)

var (
	summaryHeader   = []any{"Pair", "New drawing", "Source drawing", "Relation", "Success", "Error", "Deleted", "Added", "Diff", "Unchanged", "Total", "Output", "Title", "Subtitle", "Tolerance"}
	changedHeader   = []any{"Pair", "Kind", "Old text", "Old X", "Old Y", "New text", "New X", "New Y"}
	unchangedHeader = []any{"Pair", "Text", "Count"}
	legendHeader    = []any{"Classification", "Color", "Swatch"}
)

// WriteWorkbook writes one workbook summarising the results: entity counts per pair, changed and
// unchanged labels, and a legend of the classification colors.
func WriteWorkbook(w io.Writer, results []domain.ComparisonResult, colors domain.Colors) error {
	if err := colors.Validate(); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	for _, name := range []string{SheetChanged, SheetUnchanged, SheetLegend} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", name, err)
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	sheets := map[string]*sheetWriter{}
	for name, header := range map[string][]any{
		SheetSummary:   summaryHeader,
		SheetChanged:   changedHeader,
		SheetUnchanged: unchangedHeader,
		SheetLegend:    legendHeader,
	} {
		sw := &sheetWriter{f: f, sheet: name}
		sw.row(header...)
		if sw.err == nil {
			last, _ := excelize.CoordinatesToCellName(len(header), 1)
			sw.err = f.SetCellStyle(name, "A1", last, bold)
		}
		sheets[name] = sw
	}

	highlights := map[domain.ChangeKind]int{}
	for _, kind := range []domain.ChangeKind{domain.ChangeModified, domain.ChangeAdded, domain.ChangeRemoved} {
		style, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{strings.TrimPrefix(colors.Highlight(kind), "#")}},
		})
		if err != nil {
			return err
		}
		highlights[kind] = style
	}

	for _, result := range results {
		name := result.PairName()
		sheets[SheetSummary].row(
			name, result.NewID, result.SourceID, string(result.Relation), result.Success, result.Error,
			result.Counts.Deleted, result.Counts.Added, result.Counts.Diff, result.Counts.Unchanged, result.Counts.Total,
			result.OutputFilename, domain.Value(result.NewInfo.Title), domain.Value(result.NewInfo.Subtitle), result.Tolerance,
		)
		for _, change := range result.ChangedLabels {
			row := []any{name, string(change.Kind), change.OldText, "", "", change.NewText, "", ""}
			if change.OldPosition != nil {
				row[3], row[4] = change.OldPosition.X, change.OldPosition.Y
			}
			if change.NewPosition != nil {
				row[6], row[7] = change.NewPosition.X, change.NewPosition.Y
			}
			changed := sheets[SheetChanged]
			changed.row(row...)
			if style, ok := highlights[change.Kind]; ok && changed.err == nil {
				first, _ := excelize.CoordinatesToCellName(1, changed.next-1)
				last, _ := excelize.CoordinatesToCellName(len(changedHeader), changed.next-1)
				changed.err = f.SetCellStyle(SheetChanged, first, last, style)
			}
		}
		for _, count := range result.UnchangedCounts {
			sheets[SheetUnchanged].row(name, count.Text, count.Count)
		}
	}

	legend := sheets[SheetLegend]
	for _, entry := range []struct {
		class string
		index int
	}{{"Deleted", colors.Deleted}, {"Added", colors.Added}, {"Unchanged", colors.Unchanged}} {
		palette, _ := domain.PaletteColor(entry.index)
		legend.row(entry.class, palette.Label(), palette.Hex())
		if legend.err != nil {
			break
		}
		fill, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{strings.TrimPrefix(palette.Hex(), "#")}},
			Font: &excelize.Font{Color: strings.TrimPrefix(palette.TextHex(), "#")},
		})
		if err != nil {
			return err
		}
		cell, _ := excelize.CoordinatesToCellName(3, legend.next-1)
		legend.err = f.SetCellStyle(SheetLegend, cell, cell, fill)
	}

	for _, sw := range sheets {
		if sw.err != nil {
			return fmt.Errorf("failed to write sheet %s: %w", sw.sheet, sw.err)
		}
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 36)
	_ = f.SetColWidth(SheetChanged, "A", "A", 36)
	_ = f.SetColWidth(SheetUnchanged, "A", "B", 24)
	_ = f.SetColWidth(SheetLegend, "A", "B", 18)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write report workbook: %w", err)
	}
	return nil
}

// sheetWriter appends rows and keeps the first error.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	next  int
	err   error
}

func (s *sheetWriter) row(values ...any) {
	if s.err != nil {
		return
	}
	if s.next == 0 {
		s.next = 1
	}
	cell, err := excelize.CoordinatesToCellName(1, s.next)
	if err != nil {
		s.err = err
		return
	}
	s.err = s.f.SetSheetRow(s.sheet, cell, &values)
	s.next++
}
