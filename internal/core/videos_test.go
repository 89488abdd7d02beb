package core_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/lipsync-service/internal/core"
)

func TestListVideos_MissingDirectory(t *testing.T) {
	t.Parallel()

	videos, err := core.ListVideos(filepath.Join(t.TempDir(), "never-created"))
	require.NoError(t, err)
	assert.Empty(t, videos)
}

func TestListVideos_FiltersToRegularMP4Files(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	for _, name := range []string{"b.mp4", "a.mp4", "log.txt", "clip.MP4.bak"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}

	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.mp4"), 0o750))

	videos, err := core.ListVideos(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.mp4"), filepath.Join(dir, "b.mp4")}, videos)
}
