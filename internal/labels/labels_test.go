package labels

import (
	"testing"

	"github.com/rpattn/dxfdiff/internal/domain"
)

func text(content string, x, y float64) domain.Entity {
	return domain.Entity{
		Type:  "TEXT",
		Layer: "0",
		Color: domain.ColorByLayer,
		Shape: domain.Text{Insert: domain.Vector{X: x, Y: y}, Content: content, Height: 2.5},
	}
}

func mtext(content string, x, y float64) domain.Entity {
	return domain.Entity{
		Type:  "MTEXT",
		Layer: "0",
		Color: domain.ColorByLayer,
		Shape: domain.Text{Insert: domain.Vector{X: x, Y: y}, Content: content, Height: 2.5, Multiline: true},
	}
}

func titleBlock(name string, entities ...domain.Entity) *domain.Drawing {
	d := domain.NewDrawing(name)
	d.Entities = entities
	return d
}

func TestMatchDrawingNumber(t *testing.T) {
	cases := []struct {
		input string
		want  string
		ok    bool
	}{
		{"AB1234-567-89C", "AB1234-567-89C", true},
		{"AB123-567-89C", "", false},
		{"DWG: AB1234-567-89C (REV)", "AB1234-567-89C", true},
		{"ＡＢ１２３４－５６７－８９Ｃ", "AB1234-567-89C", true},
		{"XAB1234-567-89C", "", false},
		{"AB1234-567-89CD", "", false},
		{"ab1234-567-89c", "", false},
	}
	for _, tc := range cases {
		got, ok := MatchDrawingNumber(tc.input)
		if ok != tc.ok || got != tc.want {
			t.Errorf("%q: expected (%q, %v), got (%q, %v)", tc.input, tc.want, tc.ok, got, ok)
		}
	}
}

func TestContentStripsFormatting(t *testing.T) {
	cases := []struct {
		shape domain.Text
		want  string
	}{
		{domain.Text{Content: `{\fArial|b1;\H2.5x;TITLE}\PLINE 2`, Multiline: true}, "TITLE LINE 2"},
		{domain.Text{Content: `\C1;RED \LUNDER\l`, Multiline: true}, "RED UNDER"},
		{domain.Text{Content: `\S1^2;"`, Multiline: true}, `1/2"`},
		{domain.Text{Content: `a\\b \{x\}`, Multiline: true}, `a\b {x}`},
		{domain.Text{Content: `\U+56F3\U+756A`}, "図番"},
		{domain.Text{Content: `%%c10 %%p0.1 45%%d`}, "⌀10 ±0.1 45°"},
		{domain.Text{Content: `%%uUNDERLINED%%u 100%%%`}, "UNDERLINED 100%"},
		{domain.Text{Content: `C:\TEMP {not formatting}`}, `C:\TEMP {not formatting}`},
	}
	for _, tc := range cases {
		if got := Content(tc.shape); got != tc.want {
			t.Errorf("%q: expected %q, got %q", tc.shape.Content, tc.want, got)
		}
	}
}

func TestExtractFindsTitleBlockFields(t *testing.T) {
	d := titleBlock("sheet",
		text("DWG NO.", 300, 20),
		text("AB1234-567-89C", 340, 20),
		text("流用元図番", 300, 0),
		text("XY9876-543-21A", 340, 0),
		text("TITLE", 300, 60),
		text("BRACKET ASSEMBLY", 330, 70),
		text("MOUNTING SIDE", 330, 45),
		text("FAR AWAY", 900, 900),
	)

	info := Extract(d, DefaultExtractOptions())
	if got := domain.Value(info.MainDrawingNumber); got != "AB1234-567-89C" {
		t.Errorf("expected main drawing number, got %q", got)
	}
	if got := domain.Value(info.SourceDrawingNumber); got != "XY9876-543-21A" {
		t.Errorf("expected source drawing number, got %q", got)
	}
	if got := domain.Value(info.Title); got != "BRACKET ASSEMBLY" {
		t.Errorf("expected title, got %q", got)
	}
	if got := domain.Value(info.Subtitle); got != "MOUNTING SIDE" {
		t.Errorf("expected subtitle from the second title candidate, got %q", got)
	}
}

func TestExtractRejectsInvalidDrawingNumber(t *testing.T) {
	d := titleBlock("sheet",
		text("DWG NO.", 0, 0),
		text("AB123-567-89C", 30, 0),
	)
	info := Extract(d, DefaultExtractOptions())
	if info.MainDrawingNumber != nil {
		t.Fatalf("expected no drawing number, got %q", *info.MainDrawingNumber)
	}

	d.Entities = append(d.Entities, text("AB1234-567-89C", 60, 0))
	info = Extract(d, DefaultExtractOptions())
	if got := domain.Value(info.MainDrawingNumber); got != "AB1234-567-89C" {
		t.Fatalf("expected the valid number further away, got %q", got)
	}
}

func TestExtractRespectsProximity(t *testing.T) {
	d := titleBlock("sheet",
		text("DWG NO.", 0, 0),
		text("AB1234-567-89C", 81, 0),
		text("TITLE", 0, 100),
		text("WIDE LABEL", 90, 100),
	)
	info := Extract(d, DefaultExtractOptions())
	if info.MainDrawingNumber != nil {
		t.Errorf("expected value beyond 80 units to be ignored, got %q", *info.MainDrawingNumber)
	}
	if info.Title != nil {
		t.Errorf("expected value beyond the horizontal limit to be ignored, got %q", *info.Title)
	}
}

func TestExtractInlineAnchorAndAttributes(t *testing.T) {
	d := titleBlock("sheet",
		mtext(`{\H3;DWG NO.} ＡＢ１２３４－５６７－８９Ｄ`, 0, 0),
		domain.Entity{
			Type:  "INSERT",
			Layer: "0",
			Shape: domain.BlockReference{
				Name:   "TB",
				Insert: domain.Vector{X: 500, Y: 0},
				Attributes: []domain.Attribute{
					{Tag: "SRC_LABEL", Text: domain.Text{Insert: domain.Vector{X: 500, Y: 0}, Content: "SOURCE DWG NO."}},
					{Tag: "SRC", Text: domain.Text{Insert: domain.Vector{X: 520, Y: 0}, Content: "CD0001-002-03B"}},
				},
			},
		},
	)
	info := Extract(d, DefaultExtractOptions())
	if got := domain.Value(info.MainDrawingNumber); got != "AB1234-567-89D" {
		t.Errorf("expected inline drawing number, got %q", got)
	}
	if got := domain.Value(info.SourceDrawingNumber); got != "CD0001-002-03B" {
		t.Errorf("expected source number from block attributes, got %q", got)
	}
	if info.Title != nil || info.Subtitle != nil {
		t.Errorf("expected no title fields, got %+v", info)
	}
}

func TestExtractPrefersRightmostAnchors(t *testing.T) {
	d := titleBlock("sheet",
		text("DWG NO.", 0, 0),
		text("AA0000-000-00A", 10, 0),
		text("DWG NO.", 1000, 0),
		text("BB1111-111-11B", 1040, 0),
	)
	info := Extract(d, DefaultExtractOptions())
	if got := domain.Value(info.MainDrawingNumber); got != "BB1111-111-11B" {
		t.Errorf("expected the rightmost title block to win, got %q", got)
	}
}

func TestExtractWithoutAnchors(t *testing.T) {
	d := titleBlock("sheet", text("AB1234-567-89C", 0, 0))
	info := Extract(d, DefaultExtractOptions())
	if info != (domain.LabelInfo{}) {
		t.Errorf("expected empty info, got %+v", info)
	}
	if info := Extract(nil, DefaultExtractOptions()); info != (domain.LabelInfo{}) {
		t.Errorf("expected empty info for a nil drawing")
	}
}

func TestDiffLabelsClassifiesRows(t *testing.T) {
	source := titleBlock("old",
		text("R1", 0, 0),
		text("C5", 100, 100),
		text("NOTE A", 200, 200),
		text("GONE", 900, 900),
		text("", 5, 5),
	)
	newD := titleBlock("new",
		text("R1", 0.005, 0),
		text("C5", 110, 100),
		text("NOTE B", 201, 200),
		text("FRESH", -500, -500),
	)

	changed, unchanged := DiffLabels(newD, source, DefaultDiffOptions())
	if len(unchanged) != 1 || unchanged[0].Text != "R1" || unchanged[0].Source != "new" {
		t.Fatalf("unexpected unchanged labels %+v", unchanged)
	}
	if len(changed) != 4 {
		t.Fatalf("expected 4 changed rows, got %d: %+v", len(changed), changed)
	}

	moved := changed[0]
	if moved.Kind != domain.ChangeModified || moved.OldText != "C5" || moved.NewText != "C5" || moved.NewPosition.X != 110 {
		t.Errorf("unexpected first row %+v", moved)
	}
	edited := changed[1]
	if edited.Kind != domain.ChangeModified || edited.OldText != "NOTE A" || edited.NewText != "NOTE B" {
		t.Errorf("unexpected second row %+v", edited)
	}
	if changed[2].Kind != domain.ChangeRemoved || changed[2].OldText != "GONE" || changed[2].NewPosition != nil {
		t.Errorf("unexpected removed row %+v", changed[2])
	}
	if changed[3].Kind != domain.ChangeAdded || changed[3].NewText != "FRESH" || changed[3].OldPosition != nil {
		t.Errorf("unexpected added row %+v", changed[3])
	}
}

func TestDiffLabelsPairsNearestFirst(t *testing.T) {
	source := titleBlock("old", text("A", 0, 0), text("B", 10, 0))
	newD := titleBlock("new", text("X", 9, 0), text("Y", 30, 0))

	changed, _ := DiffLabels(newD, source, DefaultDiffOptions())
	if len(changed) != 2 {
		t.Fatalf("expected 2 rows, got %+v", changed)
	}
	if changed[0].OldText != "A" || changed[0].NewText != "Y" {
		t.Errorf("expected A paired with the remaining Y, got %+v", changed[0])
	}
	if changed[1].OldText != "B" || changed[1].NewText != "X" {
		t.Errorf("expected B paired with its nearest X, got %+v", changed[1])
	}
}

func TestDiffLabelsIdenticalDrawings(t *testing.T) {
	d := titleBlock("same", text("R1", 0, 0), text("R1", 0, 0), mtext(`\LC1`, 4, 4))
	changed, unchanged := DiffLabels(d, d, DefaultDiffOptions())
	if len(changed) != 0 || len(unchanged) != 3 {
		t.Fatalf("expected everything unchanged, got %d changed and %d unchanged", len(changed), len(unchanged))
	}
}

func TestFilterUnchangedByPrefix(t *testing.T) {
	records := []domain.LabelRecord{
		{Text: "R1"}, {Text: "C2"}, {Text: "R1"}, {Text: "R10"}, {Text: "U1"},
	}

	kept, counts := FilterUnchangedByPrefix(records, []string{"R", "C"})
	if len(kept) != 4 {
		t.Fatalf("expected 4 kept records, got %+v", kept)
	}
	expected := []domain.LabelCount{{Text: "R1", Count: 2}, {Text: "C2", Count: 1}, {Text: "R10", Count: 1}}
	if len(counts) != len(expected) {
		t.Fatalf("expected %d counts, got %+v", len(expected), counts)
	}
	for i := range expected {
		if counts[i] != expected[i] {
			t.Errorf("count %d: expected %+v, got %+v", i, expected[i], counts[i])
		}
	}

	kept, counts = FilterUnchangedByPrefix(records, nil)
	if len(kept) != 0 || len(counts) != 0 {
		t.Errorf("expected no records without prefixes, got %+v %+v", kept, counts)
	}
}
