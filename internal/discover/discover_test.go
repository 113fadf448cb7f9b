package discover

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quayside/stevedore/internal/config"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))
}

func newConfig(dataDir string) *config.Config {
	return &config.Config{
		Database:    config.Database{DefaultSchema: config.DefaultSchema},
		Directories: config.Directories{Data: dataDir},
		Discovery:   config.Discovery{Extension: ".csv"},
	}
}

func TestScan(t *testing.T) {
	t.Run("filters by extension and orders lexicographically", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "b.csv"))
		touch(t, filepath.Join(dir, "a.csv"))
		touch(t, filepath.Join(dir, "notes.txt"))

		files, err := New(newConfig(dir)).Scan()
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, filepath.Join(dir, "a.csv"), files[0].Path)
		assert.Equal(t, filepath.Join(dir, "b.csv"), files[1].Path)
		assert.Equal(t, 0, files[0].Seq)
		assert.Equal(t, 1, files[1].Seq)
	})

	t.Run("root files get the default schema", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "sales.csv"))

		files, err := New(newConfig(dir)).Scan()
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, config.DefaultSchema, files[0].Schema)
	})

	t.Run("subdirectories are schema names", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "retail", "sales.csv"))
		touch(t, filepath.Join(dir, "finance", "ledger.csv"))
		// Nested directories below a schema directory are not descended.
		touch(t, filepath.Join(dir, "retail", "nested", "deep.csv"))

		files, err := New(newConfig(dir)).Scan()
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, "finance", files[0].Schema)
		assert.Equal(t, "retail", files[1].Schema)
	})

	t.Run("ignored directories are skipped", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "loading", "partial.csv"))
		touch(t, filepath.Join(dir, "sales.csv"))

		c := newConfig(dir)
		c.Discovery.IgnoreDirs = []string{"loading"}

		files, err := New(c).Scan()
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, filepath.Join(dir, "sales.csv"), files[0].Path)
	})

	t.Run("exclude pattern drops matching names", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "_manifest.csv"))
		touch(t, filepath.Join(dir, "sales.csv"))

		c := newConfig(dir)
		c.Discovery.ExcludePattern = "^_"

		files, err := New(c).Scan()
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, filepath.Join(dir, "sales.csv"), files[0].Path)
	})

	t.Run("empty directory yields no files", func(t *testing.T) {
		files, err := New(newConfig(t.TempDir())).Scan()
		require.NoError(t, err)
		assert.Empty(t, files)
	})
}
