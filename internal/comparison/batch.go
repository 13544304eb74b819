package comparison

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/rpattn/dxfdiff/internal/domain"
	"github.com/rpattn/dxfdiff/internal/pairing"
)

// Upload is one drawing file handed to Batch.
type Upload struct {
	Filename string
	Path     string
}

// FileError reports an upload that could not be read.
type FileError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// BatchResult lists the inspected files, the pairs built from them and the comparison of every
// complete pair.
type BatchResult struct {
	Files   []pairing.FileInfo        `json:"files"`
	Skipped []FileError               `json:"skipped,omitempty"`
	Pairs   []pairing.Pair            `json:"pairs"`
	Results []domain.ComparisonResult `json:"results"`
}

// Relationships lists the parent/child rows of the complete derived-from pairs.
func (b BatchResult) Relationships() []domain.Relationship {
	return pairing.Relationships(b.Pairs)
}

// Batch identifies every upload from its title block, pairs the drawings and compares the
// complete pairs. Unreadable uploads are skipped and reported.
func (s *Service) Batch(ctx context.Context, uploads []Upload, opts Options) (BatchResult, error) {
	infos := make([]*pairing.FileInfo, len(uploads))
	errs := make([]error, len(uploads))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, upload := range uploads {
		g.Go(func() error {
			info, err := s.Inspect(ctx, upload.Filename, upload.Path, opts.Extract)
			if err != nil {
				errs[i] = err
				return nil
			}
			infos[i] = &info
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}

	var batch BatchResult
	for i, info := range infos {
		if info == nil {
			log.Printf("[BATCH] skipping %s: %v", uploads[i].Filename, errs[i])
			batch.Skipped = append(batch.Skipped, FileError{Filename: uploads[i].Filename, Error: errs[i].Error()})
			continue
		}
		batch.Files = append(batch.Files, *info)
	}

	batch.Pairs = pairing.BuildPairs(batch.Files)
	ready := pairing.Ready(batch.Pairs)
	log.Printf("[BATCH] %d files, %d pairs, %d ready", len(batch.Files), len(batch.Pairs), len(ready))

	batch.Results = s.CompareAll(ctx, ready, opts)
	for i := range batch.Files {
		batch.Files[i].Drawing = nil
	}
	return batch, nil
}
