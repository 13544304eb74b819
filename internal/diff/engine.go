// Package diff matches the entities of two drawings under a coordinate tolerance and builds the
// color-tagged merged drawing.
package diff

import (
	"errors"
	"fmt"

	"github.com/rpattn/dxfdiff/internal/domain"
)

// ErrNilDrawing is returned when either side of a diff is missing.
var ErrNilDrawing = errors.New("diff: nil drawing")

// Class is the classification of one emitted entity.
type Class string

const (
	Unchanged Class = "unchanged"
	Added     Class = "added"
	Deleted   Class = "deleted"
)

// Options configures one diff run.
type Options struct {
	// Tolerance is the coordinate resolution in drawing units, within [domain.MinTolerance, domain.MaxTolerance].
	Tolerance float64
	// Offset is applied to every source entity before matching.
	Offset *domain.Vector
	Colors domain.Colors
	// AlignDeleted emits deleted entities with Offset applied, so they line up with the new drawing.
	AlignDeleted bool
}

// DefaultOptions returns tolerance 0.01, the default palette colors and aligned deleted entities.
func DefaultOptions() Options {
	return Options{
		Tolerance:    domain.DefaultTolerance,
		Colors:       domain.DefaultColors(),
		AlignDeleted: true,
	}
}

// Validate checks the tolerance range and the three classification colors.
func (o Options) Validate() error {
	if err := domain.ValidateTolerance(o.Tolerance); err != nil {
		return err
	}
	return o.Colors.Validate()
}

func (o Options) offset() domain.Vector {
	if o.Offset == nil {
		return domain.Vector{}
	}
	return *o.Offset
}

// Entry records where an emitted entity came from. Index points into the new drawing for
// unchanged and added entries and into the source drawing for deleted ones.
type Entry struct {
	Class Class
	Index int
}

// Result is the merged drawing with per-entity provenance.
type Result struct {
	Merged  *domain.Drawing
	Entries []Entry
	Counts  domain.Counts
}

// Diff compares new against source and returns the merged drawing and its counts.
func Diff(newD, sourceD *domain.Drawing, opts Options) (*domain.Drawing, domain.Counts, error) {
	result, err := Run(newD, sourceD, opts)
	if err != nil {
		return nil, domain.Counts{}, err
	}
	return result.Merged, result.Counts, nil
}

// Run is Diff with the provenance of every merged entity. Neither input is modified.
//
// Entities are matched as multisets of signatures: a signature found k times in new and m times
// in source yields min(k, m) unchanged entities and the remainder as added or deleted. The merged
// drawing lists new's entities in their order followed by the deleted source entities in theirs.
func Run(newD, sourceD *domain.Drawing, opts Options) (*Result, error) {
	if newD == nil || sourceD == nil {
		return nil, ErrNilDrawing
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("diff options: %w", err)
	}

	s := &signer{q: newQuantizer(opts.Tolerance)}
	offset := opts.offset()

	pending := make(map[string][]int, len(sourceD.Entities))
	for i, entity := range sourceD.Entities {
		if !offset.IsZero() {
			entity = entity.Translate(offset)
		}
		key := s.signature(entity)
		pending[key] = append(pending[key], i)
	}

	b := domain.NewBuilder(newD, mergedName(newD, sourceD))
	for _, layer := range sourceD.Layers {
		b.AddLayer(layer)
	}
	for _, block := range sourceD.Blocks {
		b.AddForeignBlock(block)
	}

	entries := make([]Entry, 0, len(newD.Entities)+len(sourceD.Entities))
	matched := make([]bool, len(sourceD.Entities))
	var unchanged, added, deleted int
	for i, entity := range newD.Entities {
		key := s.signature(entity)
		if candidates := pending[key]; len(candidates) > 0 {
			matched[candidates[0]] = true
			pending[key] = candidates[1:]
			b.Append(entity.WithColor(opts.Colors.Unchanged))
			entries = append(entries, Entry{Class: Unchanged, Index: i})
			unchanged++
			continue
		}
		b.Append(entity.WithColor(opts.Colors.Added))
		entries = append(entries, Entry{Class: Added, Index: i})
		added++
	}

	for i, entity := range sourceD.Entities {
		if matched[i] {
			continue
		}
		if opts.AlignDeleted && !offset.IsZero() {
			entity = entity.Translate(offset)
		}
		b.AppendForeign(entity.WithColor(opts.Colors.Deleted))
		entries = append(entries, Entry{Class: Deleted, Index: i})
		deleted++
	}

	return &Result{
		Merged:  b.Drawing(),
		Entries: entries,
		Counts:  domain.NewCounts(deleted, added, unchanged),
	}, nil
}

func mergedName(newD, sourceD *domain.Drawing) string {
	return newD.Name + "_vs_" + sourceD.Name
}
