package comparison

import (
	"fmt"

	"github.com/rpattn/dxfdiff/internal/diff"
	"github.com/rpattn/dxfdiff/internal/labels"
)

// Options configures one comparison.
type Options struct {
	Diff    diff.Options
	Extract labels.ExtractOptions
	Labels  labels.DiffOptions
	// UnchangedPrefixes selects the unchanged labels that are reported, such as part references.
	// With no prefixes no unchanged labels are reported.
	UnchangedPrefixes []string
}

// DefaultOptions returns the default diff, extraction and label settings.
func DefaultOptions() Options {
	return Options{
		Diff:    diff.DefaultOptions(),
		Extract: labels.DefaultExtractOptions(),
		Labels:  labels.DefaultDiffOptions(),
	}
}

// WithTolerance sets the entity and label tolerance together.
func (o Options) WithTolerance(tolerance float64) Options {
	o.Diff.Tolerance = tolerance
	o.Labels.Tolerance = tolerance
	return o
}

func (o Options) Validate() error {
	if err := o.Diff.Validate(); err != nil {
		return err
	}
	if o.Labels.Tolerance < 0 || o.Labels.PairDistance < 0 {
		return fmt.Errorf("label distances must not be negative")
	}
	return nil
}
