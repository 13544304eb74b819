package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tolerance bounds and default, in drawing units.
const (
	MinTolerance     = 1e-8
	MaxTolerance     = 1.0
	DefaultTolerance = 0.01
)

// ValidateTolerance checks that tol lies in [MinTolerance, MaxTolerance].
func ValidateTolerance(tol float64) error {
	if !(tol >= MinTolerance && tol <= MaxTolerance) {
		return fmt.Errorf("%w: %g outside [%g, %g]", ErrInvalidTolerance, tol, MinTolerance, MaxTolerance)
	}
	return nil
}

// Relation describes how the two drawings of a pair are related.
type Relation string

const (
	RelationRevisionUp  Relation = "revision-up"
	RelationDerivedFrom Relation = "derived-from"
)

// Counts summarises an entity diff.
type Counts struct {
	Deleted   int `json:"deleted_entities" yaml:"deleted_entities"`
	Added     int `json:"added_entities" yaml:"added_entities"`
	Diff      int `json:"diff_entities" yaml:"diff_entities"`
	Unchanged int `json:"unchanged_entities" yaml:"unchanged_entities"`
	Total     int `json:"total_entities" yaml:"total_entities"`
}

// NewCounts derives the diff and total columns.
func NewCounts(deleted, added, unchanged int) Counts {
	return Counts{
		Deleted:   deleted,
		Added:     added,
		Diff:      deleted + added,
		Unchanged: unchanged,
		Total:     deleted + added + unchanged,
	}
}

// ComparisonResult is the outcome of comparing one (new, source) pair. It is not mutated once returned.
type ComparisonResult struct {
	ID              uuid.UUID     `json:"id"`
	NewID           string        `json:"newDrawing"`
	SourceID        string        `json:"sourceDrawing"`
	Relation        Relation      `json:"relation"`
	Success         bool          `json:"success"`
	Error           string        `json:"error,omitempty"`
	Counts          Counts        `json:"counts"`
	OutputFilename  string        `json:"outputFilename"`
	OutputLocation  string        `json:"outputLocation,omitempty"`
	NewInfo         LabelInfo     `json:"newInfo"`
	SourceInfo      LabelInfo     `json:"sourceInfo"`
	ChangedLabels   []ChangeRow   `json:"changedLabels"`
	UnchangedLabels []LabelRecord `json:"unchangedLabels"`
	UnchangedCounts []LabelCount  `json:"unchangedCounts"`
	Tolerance       float64       `json:"tolerance"`
	Colors          Colors        `json:"colors"`
	CompletedAt     time.Time     `json:"completedAt"`

	Merged    *Drawing `json:"-"`
	MergedDXF []byte   `json:"-"`
}

// PairName is the "new vs source" caption used in logs and reports.
func (r ComparisonResult) PairName() string {
	return fmt.Sprintf("%s vs %s", r.NewID, r.SourceID)
}

// OutputFilename names the merged drawing of a pair.
func OutputFilename(newID, sourceID string) string {
	return fmt.Sprintf("%s_vs_%s.dxf", newID, sourceID)
}

// Relationship is one parent/child row of the lineage registry: Child was derived from Parent.
type Relationship struct {
	Parent   string    `json:"parent"`
	Child    string    `json:"child"`
	Date     time.Time `json:"date"`
	Function string    `json:"function,omitempty"`
}
