package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat marks malformed or unreadable drawing input.
	ErrFormat = errors.New("malformed drawing")
	// ErrInvalidTolerance is returned when a tolerance is outside [MinTolerance, MaxTolerance].
	ErrInvalidTolerance = errors.New("invalid tolerance")
	// ErrInvalidColor is returned when a classification color is not a palette index.
	ErrInvalidColor = errors.New("invalid color")
)

// FormatError reports a structural problem in drawing input. Line is the 1-based line of the
// offending group code, or 0 when the problem is not tied to a position.
type FormatError struct {
	Source string
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", e.Source, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Reason)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// IOError wraps a read or write failure on a drawing or report path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ComparisonError marks a pair that could not be compared because one of its inputs failed.
type ComparisonError struct {
	NewID    string
	SourceID string
	Err      error
}

func (e *ComparisonError) Error() string {
	return fmt.Sprintf("compare %s vs %s: %v", e.NewID, e.SourceID, e.Err)
}

func (e *ComparisonError) Unwrap() error {
	return e.Err
}
