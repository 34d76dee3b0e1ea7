//go:build cgo

package main

import (
	"context"
	"fmt"

	"github.com/dusk-indust/coordinate/internal/logging"
	"github.com/dusk-indust/coordinate/internal/store"
)

// openArchive opens the KuzuDB archive at path. An empty path means no
// archive.
func openArchive(ctx context.Context, path string, logger logging.Logger) (store.Store, error) {
	if path == "" {
		return nil, nil
	}
	s, err := store.NewKuzuFileStore(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	logger.Debug("archive opened", "path", path)
	return initArchive(ctx, s)
}
