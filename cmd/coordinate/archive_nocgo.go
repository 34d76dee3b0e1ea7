//go:build !cgo

package main

import (
	"context"

	"github.com/dusk-indust/coordinate/internal/logging"
	"github.com/dusk-indust/coordinate/internal/store"
)

// openArchive falls back to an in-memory store: KuzuDB needs CGO. Sessions
// archived this way do not outlive the process.
func openArchive(ctx context.Context, path string, logger logging.Logger) (store.Store, error) {
	if path == "" {
		return nil, nil
	}
	logger.Warn("built without cgo; archive is kept in memory only", "path", path)
	return initArchive(ctx, store.NewMemStore())
}
