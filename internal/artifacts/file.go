package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rpattn/dxfdiff/internal/domain"
)

// FileStore keeps artifacts in a local directory.
type FileStore struct {
	root string
}

// NewFileStore creates the directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "dxfdiff-artifacts")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &domain.IOError{Op: "create", Path: root, Err: err}
	}
	return &FileStore{root: filepath.Clean(root)}, nil
}

// Root returns the directory artifacts are written to.
func (s *FileStore) Root() string {
	return s.root
}

// Put writes the artifact through a temporary file and a rename, so readers never observe a
// partial file. The returned location is the artifact's path.
func (s *FileStore) Put(ctx context.Context, name string, data []byte) (location string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err = cleanName(name)
	if err != nil {
		return "", err
	}
	target := filepath.Join(s.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", &domain.IOError{Op: "create", Path: filepath.Dir(target), Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".artifact-*")
	if err != nil {
		return "", &domain.IOError{Op: "create", Path: target, Err: err}
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", &domain.IOError{Op: "write", Path: target, Err: err}
	}
	if err = tmp.Close(); err != nil {
		return "", &domain.IOError{Op: "close", Path: target, Err: err}
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		return "", &domain.IOError{Op: "rename", Path: target, Err: err}
	}
	return target, nil
}

func (s *FileStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	target := filepath.Join(s.root, filepath.FromSlash(name))
	data, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, &domain.IOError{Op: "read", Path: target, Err: err}
	}
	return data, nil
}
