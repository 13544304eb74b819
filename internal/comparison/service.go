// Package comparison runs drawing comparisons: it parses both drawings of a pair, diffs their
// entities and labels, and stores the merged drawing.
package comparison

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rpattn/dxfdiff/internal/artifacts"
	"github.com/rpattn/dxfdiff/internal/diff"
	"github.com/rpattn/dxfdiff/internal/domain"
	"github.com/rpattn/dxfdiff/internal/dxf"
	"github.com/rpattn/dxfdiff/internal/labels"
	"github.com/rpattn/dxfdiff/internal/pairing"
	"github.com/rpattn/dxfdiff/internal/registry"
)

// ErrIncompletePair is reported for pairs that lack one of their drawings.
var ErrIncompletePair = errors.New("pair is missing a drawing")

// Service compares drawing pairs. It holds no per-comparison state and is safe for concurrent use.
type Service struct {
	store    artifacts.Store
	registry registry.Repository
	recorder registry.ResultRecorder
	workers  int
	now      func() time.Time
	parse    func(path string) (*domain.Drawing, error)
}

type Option func(*Service)

// WithStore stores merged drawings. Without a store they are only kept in the result.
func WithStore(store artifacts.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithRegistry records completed derived-from comparisons as parent/child relationships.
func WithRegistry(repo registry.Repository) Option {
	return func(s *Service) {
		s.registry = repo
	}
}

// WithRecorder persists every comparison result.
func WithRecorder(recorder registry.ResultRecorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// WithWorkers bounds the number of pairs compared at once.
func WithWorkers(workers int) Option {
	return func(s *Service) {
		if workers > 0 {
			s.workers = workers
		}
	}
}

func NewService(opts ...Option) *Service {
	service := &Service{
		workers: runtime.NumCPU(),
		now:     time.Now,
		parse:   dxf.ParseFile,
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.workers <= 0 {
		service.workers = 1
	}
	return service
}

// Compare runs one pair. Failures never escape as errors: they produce a result with Success
// false and the error message, and no merged drawing.
func (s *Service) Compare(ctx context.Context, pair pairing.Pair, opts Options) domain.ComparisonResult {
	result := domain.ComparisonResult{
		ID:             uuid.New(),
		NewID:          pair.NewID,
		SourceID:       pair.SourceID,
		Relation:       pair.Relation,
		OutputFilename: domain.OutputFilename(pair.NewID, pair.SourceID),
		Tolerance:      opts.Diff.Tolerance,
		Colors:         opts.Diff.Colors,
	}

	start := s.now()
	if err := s.run(ctx, pair, opts, &result); err != nil {
		cerr := &domain.ComparisonError{NewID: pair.NewID, SourceID: pair.SourceID, Err: err}
		result.Success = false
		result.Error = cerr.Error()
		result.Counts = domain.Counts{}
		result.ChangedLabels, result.UnchangedLabels, result.UnchangedCounts = nil, nil, nil
		result.Merged, result.MergedDXF, result.OutputLocation = nil, nil, ""
		log.Printf("[COMPARE] %s failed: %v", result.PairName(), err)
	} else {
		result.Success = true
		log.Printf("[COMPARE] %s: deleted=%d added=%d unchanged=%d in %s",
			result.PairName(), result.Counts.Deleted, result.Counts.Added, result.Counts.Unchanged, s.now().Sub(start))
	}
	result.CompletedAt = s.now()

	s.record(ctx, result)
	return result
}

func (s *Service) run(ctx context.Context, pair pairing.Pair, opts Options, result *domain.ComparisonResult) error {
	if !pair.Ready() {
		return ErrIncompletePair
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	newD, err := s.drawing(pair.New)
	if err != nil {
		return fmt.Errorf("new drawing: %w", err)
	}
	sourceD, err := s.drawing(pair.Source)
	if err != nil {
		return fmt.Errorf("source drawing: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	merged, err := diff.Run(newD, sourceD, opts.Diff)
	if err != nil {
		return err
	}
	result.Counts = merged.Counts
	merged.Merged.Name = result.OutputFilename

	result.NewInfo = labels.Extract(newD, opts.Extract)
	result.SourceInfo = labels.Extract(sourceD, opts.Extract)

	changed, unchanged := labels.DiffLabels(newD, sourceD, opts.Labels)
	result.ChangedLabels = changed
	result.UnchangedLabels, result.UnchangedCounts = labels.FilterUnchangedByPrefix(unchanged, opts.UnchangedPrefixes)

	data, err := dxf.Marshal(merged.Merged)
	if err != nil {
		return fmt.Errorf("encode merged drawing: %w", err)
	}
	if s.store != nil {
		location, err := s.store.Put(ctx, result.OutputFilename, data)
		if err != nil {
			return fmt.Errorf("store merged drawing: %w", err)
		}
		result.OutputLocation = location
	}
	result.Merged = merged.Merged
	result.MergedDXF = data
	return nil
}

// record keeps lineage and history. Their failures are logged and do not affect the result.
func (s *Service) record(ctx context.Context, result domain.ComparisonResult) {
	if s.recorder != nil {
		if err := s.recorder.RecordResult(ctx, result); err != nil {
			log.Printf("[COMPARE] recording %s: %v", result.PairName(), err)
		}
	}
	if s.registry == nil || !result.Success || result.Relation != domain.RelationDerivedFrom {
		return
	}
	added, err := s.registry.Add(ctx, []domain.Relationship{{Parent: result.SourceID, Child: result.NewID, Date: result.CompletedAt}})
	if err != nil {
		log.Printf("[COMPARE] registering %s: %v", result.PairName(), err)
		return
	}
	if added > 0 {
		log.Printf("[COMPARE] registered %s as derived from %s", result.NewID, result.SourceID)
	}
}

// CompareAll compares the pairs concurrently and returns their results in input order. A failing
// pair does not affect the others. Pairs not started before ctx is cancelled fail with its error.
func (s *Service) CompareAll(ctx context.Context, pairs []pairing.Pair, opts Options) []domain.ComparisonResult {
	results := make([]domain.ComparisonResult, len(pairs))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, pair := range pairs {
		g.Go(func() error {
			results[i] = s.Compare(ctx, pair, opts)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Inspect parses a drawing and extracts the labels used for pairing.
func (s *Service) Inspect(ctx context.Context, filename, path string, opts labels.ExtractOptions) (pairing.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return pairing.FileInfo{}, err
	}
	d, err := s.parse(path)
	if err != nil {
		return pairing.FileInfo{}, err
	}
	if filename == "" {
		filename = filepath.Base(path)
	}
	info := pairing.NewFileInfo(filename, path, labels.Extract(d, opts))
	info.Drawing = d
	return info, nil
}

// drawing returns the drawing parsed by Inspect, parsing the file only when there is none.
// Comparisons never modify it, so pairs sharing a file can use it concurrently.
func (s *Service) drawing(info *pairing.FileInfo) (*domain.Drawing, error) {
	if info.Drawing != nil {
		return info.Drawing, nil
	}
	return s.parse(info.Path)
}
