//go:build cgo

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTask_ArchivesToKuzu(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "archive")

	out, err := runCLI(t, "-archive", archive, "run", filepath.Join(tasksDir, "release.yml"))
	require.NoError(t, err)
	id := decodeExport(t, out).SessionID
	require.NotEmpty(t, id)

	out, err = runCLI(t, "-archive", archive, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "release-notes")
	assert.Contains(t, out, "completed")

	out, err = runCLI(t, "-archive", archive, "sessions", "-agent", "echo-2")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = runCLI(t, "-archive", archive, "sessions", "-agent", "nobody")
	require.NoError(t, err)
	assert.Equal(t, "no archived sessions\n", out)

	out, err = runCLI(t, "-archive", archive, "export", id)
	require.NoError(t, err)
	exp := decodeExport(t, out)
	assert.Equal(t, id, exp.SessionID)
	assert.True(t, exp.Success)
	require.NotNil(t, exp.Metrics)
	assert.Len(t, exp.Subtasks, 4)
}
