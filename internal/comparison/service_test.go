package comparison

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rpattn/dxfdiff/internal/artifacts"
	"github.com/rpattn/dxfdiff/internal/domain"
	"github.com/rpattn/dxfdiff/internal/dxf"
	"github.com/rpattn/dxfdiff/internal/pairing"
	"github.com/rpattn/dxfdiff/internal/registry"
)

func line(x1, y1, x2, y2 float64) []string {
	return []string{
		"0", "LINE", "8", "OUTLINE",
		"10", fmt.Sprint(x1), "20", fmt.Sprint(y1), "30", "0",
		"11", fmt.Sprint(x2), "21", fmt.Sprint(y2), "31", "0",
	}
}

func label(content string, x, y float64) []string {
	return []string{
		"0", "TEXT", "8", "TITLE",
		"10", fmt.Sprint(x), "20", fmt.Sprint(y), "30", "0",
		"40", "2.5", "1", content,
	}
}

func writeDrawing(t *testing.T, dir, name string, entities ...[]string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("0\nSECTION\n2\nENTITIES\n")
	for _, entity := range entities {
		for _, value := range entity {
			b.WriteString(value)
			b.WriteString("\n")
		}
	}
	b.WriteString("0\nENDSEC\n0\nEOF\n")
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

type recorderStub struct {
	mu      sync.Mutex
	results []domain.ComparisonResult
}

func (r *recorderStub) RecordResult(_ context.Context, result domain.ComparisonResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

// derivedPair writes a source drawing AB1234-567-89C and a new drawing AB1234-567-89D derived from it.
func derivedPair(t *testing.T, dir string) (string, string) {
	t.Helper()
	source := writeDrawing(t, dir, "old.dxf",
		line(0, 0, 100, 0),
		line(0, 0, 0, 50),
		label("DWG NO.", 0, 0),
		label("AB1234-567-89C", 40, 0),
	)
	newer := writeDrawing(t, dir, "new.dxf",
		line(0, 0, 100, 0),
		line(100, 0, 100, 50),
		label("DWG NO.", 0, 0),
		label("AB1234-567-89D", 40, 0),
		label("流用元図番", 0, -20),
		label("AB1234-567-89C", 40, -20),
	)
	return newer, source
}

func TestCompareDerivedPair(t *testing.T) {
	dir := t.TempDir()
	newPath, sourcePath := derivedPair(t, dir)

	store, err := artifacts.NewFileStore(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	reg := registry.NewWorkbook()
	recorder := &recorderStub{}
	service := NewService(WithStore(store), WithRegistry(reg), WithRecorder(recorder), WithWorkers(2))
	ctx := context.Background()

	opts := DefaultOptions()
	newInfo, err := service.Inspect(ctx, "", newPath, opts.Extract)
	if err != nil {
		t.Fatalf("inspect new: %v", err)
	}
	sourceInfo, err := service.Inspect(ctx, "old.dxf", sourcePath, opts.Extract)
	if err != nil {
		t.Fatalf("inspect source: %v", err)
	}
	if newInfo.ID != "AB1234-567-89D" || newInfo.SourceID != "AB1234-567-89C" || newInfo.Filename != "new.dxf" {
		t.Fatalf("unexpected new file info %+v", newInfo)
	}

	ready := pairing.Ready(pairing.BuildPairs([]pairing.FileInfo{newInfo, sourceInfo}))
	if len(ready) != 1 {
		t.Fatalf("expected one ready pair, got %+v", ready)
	}

	result := service.Compare(ctx, ready[0], opts)
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	want := domain.NewCounts(2, 4, 2)
	if result.Counts != want {
		t.Errorf("expected counts %+v, got %+v", want, result.Counts)
	}
	if result.OutputFilename != "AB1234-567-89D_vs_AB1234-567-89C.dxf" {
		t.Errorf("unexpected output name %q", result.OutputFilename)
	}
	if _, err := os.Stat(result.OutputLocation); err != nil {
		t.Errorf("expected merged drawing at %q: %v", result.OutputLocation, err)
	}
	if len(result.MergedDXF) == 0 || result.Merged == nil || len(result.Merged.Entities) != want.Total {
		t.Errorf("expected the merged drawing in the result")
	}
	if domain.Value(result.SourceInfo.MainDrawingNumber) != "AB1234-567-89C" {
		t.Errorf("unexpected source info %+v", result.SourceInfo)
	}

	if len(result.ChangedLabels) != 3 {
		t.Fatalf("expected 3 changed labels, got %+v", result.ChangedLabels)
	}
	first := result.ChangedLabels[0]
	if first.Kind != domain.ChangeModified || first.OldText != "AB1234-567-89C" || first.NewText != "AB1234-567-89D" {
		t.Errorf("unexpected modified row %+v", first)
	}
	if len(result.UnchangedLabels) != 0 {
		t.Errorf("expected no unchanged labels without prefixes, got %+v", result.UnchangedLabels)
	}

	rows, _ := reg.List(ctx)
	if len(rows) != 1 || rows[0].Parent != "AB1234-567-89C" || rows[0].Child != "AB1234-567-89D" {
		t.Errorf("expected the pair to be registered, got %+v", rows)
	}
	if len(recorder.results) != 1 || recorder.results[0].ID != result.ID {
		t.Errorf("expected the result to be recorded once")
	}
}

func TestCompareReusesInspectedDrawings(t *testing.T) {
	dir := t.TempDir()
	newPath, sourcePath := derivedPair(t, dir)

	service := NewService()
	var mu sync.Mutex
	parsed := map[string]int{}
	service.parse = func(path string) (*domain.Drawing, error) {
		mu.Lock()
		parsed[path]++
		mu.Unlock()
		return dxf.ParseFile(path)
	}
	ctx := context.Background()
	opts := DefaultOptions()

	newInfo, err := service.Inspect(ctx, "", newPath, opts.Extract)
	if err != nil {
		t.Fatalf("inspect new: %v", err)
	}
	sourceInfo, err := service.Inspect(ctx, "", sourcePath, opts.Extract)
	if err != nil {
		t.Fatalf("inspect source: %v", err)
	}
	result := service.Compare(ctx, pairing.Pair{
		NewID: newInfo.ID, SourceID: sourceInfo.ID, Relation: domain.RelationDerivedFrom, Status: pairing.StatusComplete,
		New: &newInfo, Source: &sourceInfo,
	}, opts)
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if parsed[newPath] != 1 || parsed[sourcePath] != 1 {
		t.Errorf("expected each drawing to be parsed once, got %v", parsed)
	}

	batch, err := service.Batch(ctx, []Upload{
		{Filename: "new.dxf", Path: newPath},
		{Filename: "old.dxf", Path: sourcePath},
	}, opts)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(batch.Results) != 1 || !batch.Results[0].Success {
		t.Fatalf("expected one successful comparison, got %+v", batch.Results)
	}
	if parsed[newPath] != 2 || parsed[sourcePath] != 2 {
		t.Errorf("expected batch uploads to be parsed once each, got %v", parsed)
	}
	for _, file := range batch.Files {
		if file.Drawing != nil {
			t.Errorf("expected %s to drop its drawing after the batch", file.Filename)
		}
	}
}

func TestCompareReportsParseFailures(t *testing.T) {
	dir := t.TempDir()
	newPath, _ := derivedPair(t, dir)
	broken := filepath.Join(dir, "broken.dxf")
	if err := os.WriteFile(broken, []byte("0\nSECTION\n2\nENTITIES\n0\nLINE\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	reg := registry.NewWorkbook()
	recorder := &recorderStub{}
	service := NewService(WithRegistry(reg), WithRecorder(recorder))
	pair := pairing.Pair{
		NewID: "N", SourceID: "S", Relation: domain.RelationDerivedFrom, Status: pairing.StatusComplete,
		New: &pairing.FileInfo{Path: newPath}, Source: &pairing.FileInfo{Path: broken},
	}

	result := service.Compare(context.Background(), pair, DefaultOptions())
	if result.Success {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(result.Error, "compare N vs S") || !strings.Contains(result.Error, "source drawing") {
		t.Errorf("unexpected error message %q", result.Error)
	}
	if result.Merged != nil || result.MergedDXF != nil || result.Counts != (domain.Counts{}) {
		t.Errorf("expected no merged output on failure")
	}
	if rows, _ := reg.List(context.Background()); len(rows) != 0 {
		t.Errorf("expected failed pairs to stay out of the registry, got %+v", rows)
	}
	if len(recorder.results) != 1 || recorder.results[0].Success {
		t.Errorf("expected the failure to be recorded")
	}
}

func TestCompareRejectsIncompletePairsAndBadOptions(t *testing.T) {
	service := NewService()
	result := service.Compare(context.Background(), pairing.Pair{NewID: "N", Status: pairing.StatusMissingSource}, DefaultOptions())
	if result.Success || !strings.Contains(result.Error, ErrIncompletePair.Error()) {
		t.Errorf("expected incomplete pair failure, got %+v", result)
	}

	dir := t.TempDir()
	newPath, sourcePath := derivedPair(t, dir)
	pair := pairing.Pair{
		NewID: "N", SourceID: "S", Relation: domain.RelationRevisionUp, Status: pairing.StatusComplete,
		New: &pairing.FileInfo{Path: newPath}, Source: &pairing.FileInfo{Path: sourcePath},
	}
	result = service.Compare(context.Background(), pair, DefaultOptions().WithTolerance(5))
	if result.Success || !strings.Contains(result.Error, domain.ErrInvalidTolerance.Error()) {
		t.Errorf("expected invalid tolerance failure, got %q", result.Error)
	}
}

func stubPairs(n int) []pairing.Pair {
	pairs := make([]pairing.Pair, n)
	for i := range pairs {
		pairs[i] = pairing.Pair{
			NewID:    fmt.Sprintf("N%d", i),
			SourceID: fmt.Sprintf("S%d", i),
			Relation: domain.RelationRevisionUp,
			Status:   pairing.StatusComplete,
			New:      &pairing.FileInfo{Path: fmt.Sprintf("new-%d", i)},
			Source:   &pairing.FileInfo{Path: fmt.Sprintf("source-%d", i)},
		}
	}
	return pairs
}

func TestCompareAllKeepsOrderAndIsolatesFailures(t *testing.T) {
	service := NewService(WithWorkers(3))
	service.parse = func(path string) (*domain.Drawing, error) {
		if path == "source-2" {
			return nil, errors.New("unreadable")
		}
		d := domain.NewDrawing(path)
		d.Entities = []domain.Entity{{Type: "LINE", Layer: "0", Color: domain.ColorByLayer, Shape: domain.Line{End: domain.Vector{X: 1}}}}
		return d, nil
	}

	pairs := stubPairs(6)
	results := service.CompareAll(context.Background(), pairs, DefaultOptions())
	if len(results) != len(pairs) {
		t.Fatalf("expected %d results, got %d", len(pairs), len(results))
	}
	for i, result := range results {
		if result.NewID != pairs[i].NewID {
			t.Fatalf("result %d out of order: %s", i, result.NewID)
		}
		if i == 2 {
			if result.Success || !strings.Contains(result.Error, "unreadable") {
				t.Errorf("expected pair 2 to fail, got %+v", result)
			}
			continue
		}
		if !result.Success || result.Counts.Unchanged != 1 {
			t.Errorf("pair %d: expected one unchanged entity, got %+v (%s)", i, result.Counts, result.Error)
		}
	}
}

func TestCompareAllAfterCancellation(t *testing.T) {
	service := NewService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, result := range service.CompareAll(ctx, stubPairs(3), DefaultOptions()) {
		if result.Success || !strings.Contains(result.Error, context.Canceled.Error()) {
			t.Errorf("expected cancelled result, got %+v", result)
		}
	}
}

func TestBatchPairsAndSkipsUnreadableUploads(t *testing.T) {
	dir := t.TempDir()
	newPath, sourcePath := derivedPair(t, dir)
	garbage := filepath.Join(dir, "garbage.dxf")
	if err := os.WriteFile(garbage, []byte("not a drawing"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	service := NewService(WithWorkers(2))
	batch, err := service.Batch(context.Background(), []Upload{
		{Filename: "new.dxf", Path: newPath},
		{Filename: "garbage.dxf", Path: garbage},
		{Filename: "old.dxf", Path: sourcePath},
	}, DefaultOptions())
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(batch.Files) != 2 || len(batch.Skipped) != 1 || batch.Skipped[0].Filename != "garbage.dxf" {
		t.Fatalf("unexpected files %+v skipped %+v", batch.Files, batch.Skipped)
	}
	if len(batch.Pairs) != 2 {
		t.Fatalf("expected two pair rows, got %+v", batch.Pairs)
	}
	if len(batch.Results) != 1 || !batch.Results[0].Success {
		t.Fatalf("expected one successful comparison, got %+v", batch.Results)
	}
	rels := batch.Relationships()
	if len(rels) != 1 || rels[0].Parent != "AB1234-567-89C" {
		t.Errorf("unexpected relationships %+v", rels)
	}
}
