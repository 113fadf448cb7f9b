package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/quayside/stevedore/internal"
)

var frozen = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func newReporter(t *testing.T) (*Reporter, string) {
	t.Helper()
	logDir := t.TempDir()
	r := New("run-1", "sales", logDir, WithClock(func() time.Time { return frozen }))
	return r, logDir
}

func sampleOutcomes(r *Reporter) {
	r.Record(internal.Outcome{
		File:       internal.File{Path: "/data/orders.csv", Schema: "retail", Table: "orders", Mode: internal.LoadModeDefault},
		Status:     internal.StatusSuccess,
		RowsLoaded: 100,
	})
	r.Record(internal.Outcome{
		File:        internal.File{Path: "/data/returns.csv", Schema: "retail", Table: "returns", Mode: internal.LoadModeFull},
		Status:      internal.StatusFailed,
		ExitCode:    1,
		RowsIgnored: 3,
		Err:         "malformed input",
	})
	r.Record(internal.Outcome{
		File:        internal.File{Path: "/data/stock.csv", Schema: "retail", Table: "stock", Mode: internal.LoadModeDefault},
		Status:      internal.StatusPartial,
		RowsLoaded:  98,
		RowsIgnored: 2,
	})
}

func TestSummary(t *testing.T) {
	t.Run("aggregates counts", func(t *testing.T) {
		r, _ := newReporter(t)
		sampleOutcomes(r)

		s := r.Summary()
		assert.Equal(t, 3, s.Attempted)
		assert.Equal(t, 1, s.Succeeded)
		assert.Equal(t, 1, s.Partial)
		assert.Equal(t, 1, s.Failed)
		assert.True(t, s.HasFailures())
		assert.Equal(t, "run-1", s.RunID)
	})

	t.Run("empty run has no failures", func(t *testing.T) {
		r, _ := newReporter(t)

		s := r.Summary()
		assert.Equal(t, 0, s.Attempted)
		assert.False(t, s.HasFailures())
	})
}

func TestRenderText(t *testing.T) {
	r, _ := newReporter(t)
	sampleOutcomes(r)

	text := RenderText(r.Summary())
	assert.Contains(t, text, "Files attempted 3, succeeded 1, partial 1, failed 1")
	assert.Contains(t, text, "FAILED")
	assert.Contains(t, text, "retail.returns")
	assert.Contains(t, text, "malformed input")
}

func TestRenderHTML(t *testing.T) {
	r, _ := newReporter(t)
	sampleOutcomes(r)

	html, err := RenderHTML(r.Summary())
	require.NoError(t, err)
	assert.Contains(t, html, "<table")
	assert.Contains(t, html, "returns")
	assert.Contains(t, html, "FAILED")
}

func TestWriteResults(t *testing.T) {
	r, logDir := newReporter(t)
	sampleOutcomes(r)
	s := r.Summary()

	textPath, err := r.WriteResults(s)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(logDir, "load_results_2024-03-15_10-00-00.log"), textPath)

	bs, err := os.ReadFile(textPath)
	require.NoError(t, err)
	assert.Contains(t, string(bs), "Load run run-1")

	ybs, err := os.ReadFile(filepath.Join(logDir, "run_run-1.yml"))
	require.NoError(t, err)

	var decoded Summary
	require.NoError(t, yaml.Unmarshal(ybs, &decoded))
	assert.Equal(t, s.Attempted, decoded.Attempted)
	assert.Equal(t, s.Failed, decoded.Failed)
	require.Len(t, decoded.Outcomes, 3)
	assert.Equal(t, "orders", decoded.Outcomes[0].Table)
}
