package pairing

import (
	"testing"

	"github.com/rpattn/dxfdiff/internal/domain"
)

func ptr(s string) *string { return &s }

func TestSplitRevision(t *testing.T) {
	cases := []struct {
		id     string
		base   string
		letter rune
		ok     bool
	}{
		{"AB1234-567-89A", "AB1234-567-89", 'A', true},
		{"AB1234-567-89Ｃ", "AB1234-567-89", 'C', true},
		{"PART-7", "", 0, false},
		{"B", "", 0, false},
		{"part-b", "", 0, false},
	}
	for _, tc := range cases {
		base, letter, ok := SplitRevision(tc.id)
		if base != tc.base || letter != tc.letter || ok != tc.ok {
			t.Errorf("%q: expected (%q, %q, %v), got (%q, %q, %v)", tc.id, tc.base, tc.letter, tc.ok, base, letter, ok)
		}
	}
}

func TestGroupRevisionsPairsConsecutiveLetters(t *testing.T) {
	pairs := GroupRevisions([]string{"AB1234-567-89B", "AB1234-567-89A"})
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %+v", pairs)
	}
	pair := pairs[0]
	if pair.SourceID != "AB1234-567-89A" || pair.NewID != "AB1234-567-89B" || pair.Relation != domain.RelationRevisionUp {
		t.Fatalf("unexpected pair %+v", pair)
	}

	pairs = GroupRevisions([]string{"X-C", "X-A", "X-Ｂ", "Y-A", "Z-1"})
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %+v", pairs)
	}
	if pairs[0].SourceID != "X-A" || pairs[0].NewID != "X-Ｂ" || pairs[1].SourceID != "X-Ｂ" || pairs[1].NewID != "X-C" {
		t.Errorf("unexpected chain %+v", pairs)
	}
}

func TestIdentifyFallsBackToFilename(t *testing.T) {
	if got := Identify(domain.LabelInfo{MainDrawingNumber: ptr("AB1234-567-89C")}, "upload.dxf"); got != "AB1234-567-89C" {
		t.Errorf("expected extracted number, got %q", got)
	}
	if got := Identify(domain.LabelInfo{}, "/tmp/in/BRACKET_R2.dxf"); got != "BRACKET_R2" {
		t.Errorf("expected file stem, got %q", got)
	}
}

func TestBuildPairsStatuses(t *testing.T) {
	files := []FileInfo{
		NewFileInfo("child.dxf", "/tmp/child.dxf", domain.LabelInfo{MainDrawingNumber: ptr("CD0001-002-03A"), SourceDrawingNumber: ptr("AB1234-567-89C")}),
		NewFileInfo("parent.dxf", "/tmp/parent.dxf", domain.LabelInfo{MainDrawingNumber: ptr("AB1234-567-89C")}),
		NewFileInfo("orphan.dxf", "/tmp/orphan.dxf", domain.LabelInfo{MainDrawingNumber: ptr("EF0001-002-03A"), SourceDrawingNumber: ptr("ZZ9999-999-99Z")}),
		NewFileInfo("parent-rev.dxf", "/tmp/parent-rev.dxf", domain.LabelInfo{MainDrawingNumber: ptr("AB1234-567-89D"), SourceDrawingNumber: ptr("AB1234-567-89C")}),
		NewFileInfo("dup.dxf", "/tmp/dup.dxf", domain.LabelInfo{MainDrawingNumber: ptr("AB1234-567-89C")}),
	}

	pairs := BuildPairs(files)
	if len(pairs) != 4 {
		t.Fatalf("expected 4 pairs, got %d: %+v", len(pairs), pairs)
	}

	expected := []struct {
		newID, sourceID string
		status          Status
		relation        domain.Relation
	}{
		{"AB1234-567-89C", "", StatusNoSource, domain.RelationDerivedFrom},
		{"AB1234-567-89D", "AB1234-567-89C", StatusComplete, domain.RelationDerivedFrom},
		{"CD0001-002-03A", "AB1234-567-89C", StatusComplete, domain.RelationDerivedFrom},
		{"EF0001-002-03A", "ZZ9999-999-99Z", StatusMissingSource, domain.RelationDerivedFrom},
	}
	for i, want := range expected {
		got := pairs[i]
		if got.NewID != want.newID || got.SourceID != want.sourceID || got.Status != want.status || got.Relation != want.relation {
			t.Errorf("pair %d: expected %+v, got %+v", i, want, got)
		}
	}
	if pairs[2].Source == nil || pairs[2].Source.Path != "/tmp/parent.dxf" {
		t.Errorf("expected the first file with a shared id to be used, got %+v", pairs[2].Source)
	}

	ready := Ready(pairs)
	if len(ready) != 2 {
		t.Errorf("expected 2 ready pairs, got %d", len(ready))
	}
	rows := Relationships(pairs)
	if len(rows) != 2 || rows[1].Parent != "AB1234-567-89C" || rows[1].Child != "CD0001-002-03A" {
		t.Errorf("unexpected relationships %+v", rows)
	}
}

func TestBuildPairsAddsRevisionUp(t *testing.T) {
	files := []FileInfo{
		NewFileInfo("a.dxf", "/tmp/a.dxf", domain.LabelInfo{MainDrawingNumber: ptr("AB1234-567-89A")}),
		NewFileInfo("b.dxf", "/tmp/b.dxf", domain.LabelInfo{MainDrawingNumber: ptr("AB1234-567-89B")}),
	}
	pairs := BuildPairs(files)
	if len(pairs) != 3 {
		t.Fatalf("expected two rows and one revision pair, got %+v", pairs)
	}
	revision := pairs[2]
	if revision.Relation != domain.RelationRevisionUp || !revision.Ready() {
		t.Fatalf("unexpected revision pair %+v", revision)
	}
	if revision.New.Path != "/tmp/b.dxf" || revision.Source.Path != "/tmp/a.dxf" {
		t.Errorf("expected B compared against A, got %s vs %s", revision.New.Path, revision.Source.Path)
	}
}
