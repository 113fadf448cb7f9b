package bulkload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quayside/stevedore/internal"
	"github.com/quayside/stevedore/internal/config"
)

func newConfig() *config.Config {
	return &config.Config{
		Database: config.Database{Name: "sales", DefaultSchema: config.DefaultSchema},
		Loader: config.Loader{
			Binary:         "tsload",
			FieldSeparator: ",",
			HasHeaderRow:   true,
			MaxIgnoredRows: 5,
		},
	}
}

// stubLoader writes a fake loader script that consumes stdin, prints the
// given output and exits with the given code.
func stubLoader(t *testing.T, output string, exitCode int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tsload")
	script := fmt.Sprintf("#!/bin/sh\ncat > /dev/null\ncat <<'EOF'\n%s\nEOF\nexit %d\n", output, exitCode)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func dataFile(t *testing.T) internal.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,amount\n1,10\n2,20\n"), 0o644))
	return internal.File{Path: path, Schema: config.DefaultSchema, Table: "orders", Mode: internal.LoadModeDefault}
}

func TestArgs(t *testing.T) {
	t.Run("base flag set", func(t *testing.T) {
		e := New(newConfig())

		args := e.Args(internal.File{Schema: "retail", Table: "orders", Mode: internal.LoadModeDefault})
		assert.Contains(t, args, "--target_database")
		assert.Contains(t, args, "sales")
		assert.Contains(t, args, "--target_schema")
		assert.Contains(t, args, "retail")
		assert.Contains(t, args, "--target_table")
		assert.Contains(t, args, "orders")
		assert.Contains(t, args, "--has_header_row")
		assert.NotContains(t, args, "--empty_target")
	})

	t.Run("full mode sets empty_target", func(t *testing.T) {
		e := New(newConfig())

		args := e.Args(internal.File{Table: "orders", Mode: internal.LoadModeFull})
		assert.Contains(t, args, "--empty_target")
	})

	t.Run("incremental mode overrides the truncate default", func(t *testing.T) {
		c := newConfig()
		c.Loader.TruncateBeforeLoad = true
		e := New(c)

		assert.Contains(t, e.Args(internal.File{Table: "a", Mode: internal.LoadModeDefault}), "--empty_target")
		assert.NotContains(t, e.Args(internal.File{Table: "a", Mode: internal.LoadModeIncremental}), "--empty_target")
	})

	t.Run("passthrough flags", func(t *testing.T) {
		c := newConfig()
		c.Loader.Flags = map[string]string{
			"skip_second_fraction": "true",
			"ignored_switch":       "false",
			"buffer_size":          "8192",
		}
		e := New(c)

		args := e.Args(internal.File{Table: "orders"})
		assert.Contains(t, args, "--skip_second_fraction")
		assert.Contains(t, args, "--buffer_size")
		assert.Contains(t, args, "8192")
		assert.NotContains(t, args, "--ignored_switch")
	})
}

func TestLoad(t *testing.T) {
	t.Run("clean exit with no ignored rows", func(t *testing.T) {
		bin := stubLoader(t, "Rows total: 2\nRows successfully loaded: 2\nRows failed to load: 0", 0)
		e := New(newConfig(), WithBinary(bin))

		outcome := e.Load(context.Background(), dataFile(t))
		assert.Equal(t, internal.StatusSuccess, outcome.Status)
		assert.Equal(t, int64(2), outcome.RowsLoaded)
		assert.Equal(t, 0, outcome.ExitCode)
	})

	t.Run("ignored rows within threshold is partial", func(t *testing.T) {
		bin := stubLoader(t, "Rows total: 5\nRows successfully loaded: 3\nRows failed to load: 2", 0)
		e := New(newConfig(), WithBinary(bin))

		outcome := e.Load(context.Background(), dataFile(t))
		assert.Equal(t, internal.StatusPartial, outcome.Status)
		assert.Equal(t, int64(2), outcome.RowsIgnored)
	})

	t.Run("ignored rows beyond threshold fails", func(t *testing.T) {
		bin := stubLoader(t, "Rows total: 20\nRows successfully loaded: 10\nRows failed to load: 10", 0)
		e := New(newConfig(), WithBinary(bin))

		outcome := e.Load(context.Background(), dataFile(t))
		assert.Equal(t, internal.StatusFailed, outcome.Status)
	})

	t.Run("nonzero exit fails with captured output", func(t *testing.T) {
		bin := stubLoader(t, "tsload: malformed input: zero columns", 1)
		e := New(newConfig(), WithBinary(bin))

		outcome := e.Load(context.Background(), dataFile(t))
		assert.Equal(t, internal.StatusFailed, outcome.Status)
		assert.Equal(t, 1, outcome.ExitCode)
		assert.Contains(t, outcome.Err, "malformed input")
	})

	t.Run("missing binary fails", func(t *testing.T) {
		e := New(newConfig(), WithBinary(filepath.Join(t.TempDir(), "absent")))

		outcome := e.Load(context.Background(), dataFile(t))
		assert.Equal(t, internal.StatusFailed, outcome.Status)
		assert.Equal(t, -1, outcome.ExitCode)
		assert.NotEmpty(t, outcome.Err)
	})

	t.Run("missing source file fails", func(t *testing.T) {
		bin := stubLoader(t, "", 0)
		e := New(newConfig(), WithBinary(bin))

		outcome := e.Load(context.Background(), internal.File{Path: "/nonexistent/orders.csv", Table: "orders"})
		assert.Equal(t, internal.StatusFailed, outcome.Status)
	})
}
