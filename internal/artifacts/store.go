// Package artifacts stores merged drawings and reports produced by comparisons.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by Get when no artifact has the given name.
var ErrNotFound = errors.New("artifact not found")

// Store persists named artifacts. Put returns the location the artifact can be retrieved from.
type Store interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	Get(ctx context.Context, name string) ([]byte, error)
}

// cleanName rejects names that would escape the store's root.
func cleanName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", errors.New("artifact name is required")
	}
	cleaned := path.Clean("/" + strings.ReplaceAll(trimmed, "\\", "/"))[1:]
	if cleaned == "" || cleaned != strings.ReplaceAll(trimmed, "\\", "/") {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return cleaned, nil
}
