// Package registry records which drawing was derived from which.
package registry

import (
	"context"
	"strings"

	"github.com/rpattn/dxfdiff/internal/domain"
)

// Repository stores parent/child drawing relationships.
type Repository interface {
	List(ctx context.Context) ([]domain.Relationship, error)
	// Add stores the relationships not already present and reports how many were new.
	Add(ctx context.Context, rows []domain.Relationship) (int, error)
}

// ResultRecorder persists the outcome of a comparison.
type ResultRecorder interface {
	RecordResult(ctx context.Context, result domain.ComparisonResult) error
}

type key struct {
	parent, child string
}

func keyOf(rel domain.Relationship) key {
	return key{parent: strings.TrimSpace(rel.Parent), child: strings.TrimSpace(rel.Child)}
}

func (k key) valid() bool {
	return k.parent != "" && k.child != ""
}

// Multi fans writes out to several repositories. List reads from the first.
type Multi []Repository

func (m Multi) List(ctx context.Context) ([]domain.Relationship, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].List(ctx)
}

// Add stores the rows in every repository and reports the count of the first.
func (m Multi) Add(ctx context.Context, rows []domain.Relationship) (int, error) {
	added := 0
	for i, repo := range m {
		n, err := repo.Add(ctx, rows)
		if err != nil {
			return added, err
		}
		if i == 0 {
			added = n
		}
	}
	return added, nil
}
