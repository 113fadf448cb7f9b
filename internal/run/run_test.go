package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quayside/stevedore/internal/archive"
	"github.com/quayside/stevedore/internal/bulkload"
	"github.com/quayside/stevedore/internal/config"
	"github.com/quayside/stevedore/internal/discover"
	"github.com/quayside/stevedore/internal/hooks"
	"github.com/quayside/stevedore/internal/naming"
	"github.com/quayside/stevedore/internal/report"
)

// fakeStatements records statements executed through the hook runner.
type fakeStatements struct {
	statements []string
}

func (f *fakeStatements) Execute(ctx context.Context, stmt string) error {
	f.statements = append(f.statements, stmt)
	return nil
}

func (f *fakeStatements) Close() error {
	return nil
}

// stubLoader writes a fake loader that records its arguments per table and
// fails every load targeting the "returns" table.
func stubLoader(t *testing.T, captureDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tsload")
	script := fmt.Sprintf(`#!/bin/sh
cat > /dev/null
table=""
next=0
for a in "$@"; do
  if [ "$next" = "1" ]; then table="$a"; next=0; fi
  if [ "$a" = "--target_table" ]; then next=1; fi
done
echo "$@" >> %q/args_$table
if [ "$table" = "returns" ]; then
  echo "tsload: constraint violation on returns"
  exit 1
fi
cat <<'EOF'
Rows total: 10
Rows successfully loaded: 10
Rows failed to load: 0
EOF
`, captureDir)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func testConfig(t *testing.T, binary string) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.Database{Name: "sales", DefaultSchema: config.DefaultSchema},
		Directories: config.Directories{
			Data:    t.TempDir(),
			Archive: t.TempDir(),
			Log:     t.TempDir(),
		},
		Discovery: config.Discovery{Extension: ".csv"},
		Naming: config.Naming{
			Separator:         "-",
			FullSuffix:        "_full",
			IncrementalSuffix: "_incremental",
		},
		Loader: config.Loader{
			Binary:         binary,
			FieldSeparator: ",",
			HasHeaderRow:   true,
		},
		Hooks:   config.Hooks{Poll: config.Poll{MaxAttempts: 3, Delay: time.Millisecond}},
		Archive: config.Archive{Policy: "always", Mode: "move"},
		Lock:    config.Lock{Filename: "load_file"},
	}
}

func newRunner(t *testing.T, c *config.Config, exec *fakeStatements) (*Runner, *report.Reporter) {
	t.Helper()
	rep := report.New("run-1", c.Database.Name, c.Directories.Log)
	r := New(c, "run-1",
		WithScanner(discover.New(c)),
		WithResolver(naming.New(c)),
		WithExecutor(bulkload.New(c)),
		WithHooks(hooks.New(c, exec)),
		WithArchiver(archive.New(c)),
		WithReporter(rep),
	)
	return r, rep
}

func stage(t *testing.T, c *config.Config, name, contents string) string {
	t.Helper()
	path := filepath.Join(c.Directories.Data, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestRun(t *testing.T) {
	t.Run("mixed outcome run", func(t *testing.T) {
		captureDir := t.TempDir()
		c := testConfig(t, stubLoader(t, captureDir))
		c.Hooks.Tables = map[string]config.TableHooks{
			"orders": {PostStatement: "INSERT INTO audit VALUES ('orders done')"},
		}
		exec := &fakeStatements{}
		r, rep := newRunner(t, c, exec)

		stage(t, c, "Orders-001.csv", "1,10\n")
		stage(t, c, "Orders-002.csv", "2,20\n")
		stage(t, c, "Returns_full.csv", "3,30\n")

		err := r.Run(context.Background())
		assert.ErrorIs(t, err, ErrLoadFailures)

		s := rep.Summary()
		assert.Equal(t, 3, s.Attempted)
		assert.Equal(t, 2, s.Succeeded)
		assert.Equal(t, 1, s.Failed)

		// The full-load file carried the truncate switch.
		bs, err := os.ReadFile(filepath.Join(captureDir, "args_returns"))
		require.NoError(t, err)
		assert.Contains(t, string(bs), "--empty_target")
		bs, err = os.ReadFile(filepath.Join(captureDir, "args_orders"))
		require.NoError(t, err)
		assert.NotContains(t, string(bs), "--empty_target")

		// Policy "always" moved every file under today's date partition.
		partition := filepath.Join(c.Directories.Archive, time.Now().Format("2006-01-02"))
		for _, name := range []string{"Orders-001.csv", "Orders-002.csv", "Returns_full.csv"} {
			_, err := os.Stat(filepath.Join(partition, name))
			assert.NoError(t, err, name)
			_, err = os.Stat(filepath.Join(c.Directories.Data, name))
			assert.True(t, os.IsNotExist(err), name)
		}

		// The orders post hook fired once, after the table's last file.
		require.Len(t, exec.statements, 1)
		assert.Equal(t, "INSERT INTO audit VALUES ('orders done')", exec.statements[0])

		// The lock was released.
		_, err = os.Stat(filepath.Join(c.Directories.Data, "load_file"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("empty data directory is a clean run", func(t *testing.T) {
		c := testConfig(t, "tsload")
		r, rep := newRunner(t, c, &fakeStatements{})

		require.NoError(t, r.Run(context.Background()))
		assert.Equal(t, 0, rep.Summary().Attempted)

		// The results report is still written.
		entries, err := os.ReadDir(c.Directories.Log)
		require.NoError(t, err)
		assert.NotEmpty(t, entries)

		// The archive is untouched.
		entries, err = os.ReadDir(c.Directories.Archive)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("missing data directory is fatal", func(t *testing.T) {
		c := testConfig(t, "tsload")
		c.Directories.Data = filepath.Join(t.TempDir(), "absent")
		r, _ := newRunner(t, c, &fakeStatements{})

		err := r.Run(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrLoadFailures)
	})

	t.Run("held lock aborts the run", func(t *testing.T) {
		c := testConfig(t, "tsload")
		lockPath := filepath.Join(c.Directories.Data, "load_file")
		require.NoError(t, os.WriteFile(lockPath, []byte(fmt.Sprintf("%d other-run\n", os.Getpid())), 0o644))
		r, _ := newRunner(t, c, &fakeStatements{})

		stage(t, c, "Orders-001.csv", "1,10\n")

		err := r.Run(context.Background())
		assert.ErrorIs(t, err, ErrAlreadyRunning)

		// Nothing was loaded or moved.
		_, err = os.Stat(filepath.Join(c.Directories.Data, "Orders-001.csv"))
		assert.NoError(t, err)
	})

	t.Run("absent semaphore means nothing to do", func(t *testing.T) {
		c := testConfig(t, "tsload")
		c.Semaphore = config.Semaphore{Filename: "extract_done", MaxAttempts: 1, Delay: time.Millisecond}
		r, rep := newRunner(t, c, &fakeStatements{})

		stage(t, c, "Orders-001.csv", "1,10\n")

		require.NoError(t, r.Run(context.Background()))
		assert.Equal(t, 0, rep.Summary().Attempted)
	})

	t.Run("unresolvable file is failed and archived", func(t *testing.T) {
		captureDir := t.TempDir()
		c := testConfig(t, stubLoader(t, captureDir))
		c.Naming.StripPatterns = []string{"^junk$"}
		r, rep := newRunner(t, c, &fakeStatements{})

		stage(t, c, "junk.csv", "1\n")

		err := r.Run(context.Background())
		assert.ErrorIs(t, err, ErrLoadFailures)

		s := rep.Summary()
		require.Equal(t, 1, s.Attempted)
		assert.Equal(t, 1, s.Failed)
		assert.Contains(t, s.Outcomes[0].Error, "no table name")

		// The loader was never invoked for it.
		entries, readErr := os.ReadDir(captureDir)
		require.NoError(t, readErr)
		assert.Empty(t, entries)
	})

	t.Run("pre hook failure fails the file without loading", func(t *testing.T) {
		captureDir := t.TempDir()
		c := testConfig(t, stubLoader(t, captureDir))
		c.Hooks.Tables = map[string]config.TableHooks{
			"orders": {PreCommand: "exit 1"},
		}
		r, rep := newRunner(t, c, &fakeStatements{})

		stage(t, c, "Orders-001.csv", "1,10\n")

		err := r.Run(context.Background())
		assert.ErrorIs(t, err, ErrLoadFailures)

		s := rep.Summary()
		assert.Equal(t, 1, s.Failed)
		entries, readErr := os.ReadDir(captureDir)
		require.NoError(t, readErr)
		assert.Empty(t, entries)
	})

	t.Run("post hook is skipped when no file of the table loaded", func(t *testing.T) {
		captureDir := t.TempDir()
		c := testConfig(t, stubLoader(t, captureDir))
		c.Hooks.Tables = map[string]config.TableHooks{
			"orders": {
				PreCommand:    "exit 1",
				PostStatement: "INSERT INTO audit VALUES ('orders done')",
			},
		}
		exec := &fakeStatements{}
		r, rep := newRunner(t, c, exec)

		stage(t, c, "Orders-001.csv", "1,10\n")
		stage(t, c, "Orders-002.csv", "2,20\n")

		err := r.Run(context.Background())
		assert.ErrorIs(t, err, ErrLoadFailures)
		assert.Equal(t, 2, rep.Summary().Failed)

		// Both files failed on the sticky pre hook, so the post-load DDL
		// never ran.
		assert.Empty(t, exec.statements)
	})
}
