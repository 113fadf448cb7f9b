// Package report aggregates per-file load outcomes into a run summary and
// renders it for the results file and the notification channel.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/quayside/stevedore/internal"
)

// Summary is the aggregate result of one run.
type Summary struct {
	RunID     string    `yaml:"run_id"`
	Database  string    `yaml:"database"`
	StartTime time.Time `yaml:"start_time"`
	EndTime   time.Time `yaml:"end_time"`
	Attempted int       `yaml:"attempted"`
	Succeeded int       `yaml:"succeeded"`
	Partial   int       `yaml:"partial"`
	Failed    int       `yaml:"failed"`
	Outcomes  []Record  `yaml:"outcomes"`
}

// HasFailures reports whether any file failed, which drives the process
// exit code.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// Record is the flattened, serializable view of one outcome.
type Record struct {
	File        string        `yaml:"file"`
	Schema      string        `yaml:"schema"`
	Table       string        `yaml:"table"`
	Mode        string        `yaml:"mode"`
	Status      string        `yaml:"status"`
	RowsLoaded  int64         `yaml:"rows_loaded"`
	RowsIgnored int64         `yaml:"rows_ignored"`
	ExitCode    int           `yaml:"exit_code"`
	Duration    time.Duration `yaml:"duration"`
	Error       string        `yaml:"error,omitempty"`
}

type Option func(*Reporter)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Reporter) {
		r.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		r.now = now
	}
}

// Reporter accumulates outcomes during the run and finalizes them into a
// Summary at run end.
type Reporter struct {
	logger   *zap.Logger
	runID    string
	database string
	logDir   string
	now      func() time.Time

	started  time.Time
	outcomes []internal.Outcome
}

func New(runID, database, logDir string, opts ...Option) *Reporter {
	r := &Reporter{
		logger:   zap.NewNop(),
		runID:    runID,
		database: database,
		logDir:   logDir,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.started = r.now()
	return r
}

// Record appends one file's outcome. Outcomes are immutable once recorded.
func (r *Reporter) Record(o internal.Outcome) {
	r.outcomes = append(r.outcomes, o)
	r.logger.Info("recorded outcome",
		zap.String("file", o.File.Path),
		zap.String("table", o.File.Table),
		zap.String("status", string(o.Status)),
	)
}

// Summary finalizes the aggregate counts.
func (r *Reporter) Summary() Summary {
	s := Summary{
		RunID:     r.runID,
		Database:  r.database,
		StartTime: r.started,
		EndTime:   r.now(),
		Attempted: len(r.outcomes),
	}
	for _, o := range r.outcomes {
		switch o.Status {
		case internal.StatusSuccess:
			s.Succeeded++
		case internal.StatusPartial:
			s.Partial++
		case internal.StatusFailed:
			s.Failed++
		}
		s.Outcomes = append(s.Outcomes, Record{
			File:        o.File.Path,
			Schema:      o.File.Schema,
			Table:       o.File.Table,
			Mode:        string(o.File.Mode),
			Status:      string(o.Status),
			RowsLoaded:  o.RowsLoaded,
			RowsIgnored: o.RowsIgnored,
			ExitCode:    o.ExitCode,
			Duration:    o.Duration,
			Error:       o.Err,
		})
	}
	return s
}

// RenderText renders the human-readable run report.
func RenderText(s Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Load run %s against database %s\n", s.RunID, s.Database)
	fmt.Fprintf(&b, "Started  %s\n", s.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "Finished %s\n", s.EndTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "Files attempted %d, succeeded %d, partial %d, failed %d\n\n",
		s.Attempted, s.Succeeded, s.Partial, s.Failed)

	for _, o := range s.Outcomes {
		fmt.Fprintf(&b, "%-8s %s.%s  %s (mode %s, %d loaded, %d ignored, %s)\n",
			strings.ToUpper(o.Status), o.Schema, o.Table, o.File, o.Mode,
			o.RowsLoaded, o.RowsIgnored, o.Duration.Round(time.Millisecond))
		if o.Error != "" {
			fmt.Fprintf(&b, "         error: %s\n", strings.TrimSpace(o.Error))
		}
	}
	return b.String()
}

// WriteResults persists the rendered report and a machine-readable YAML
// artifact in the log directory. Returns the path of the text report.
func (r *Reporter) WriteResults(s Summary) (string, error) {
	if err := os.MkdirAll(r.logDir, 0o755); err != nil {
		return "", err
	}

	stamp := s.StartTime.Format("2006-01-02_15-04-05")
	textPath := filepath.Join(r.logDir, fmt.Sprintf("load_results_%s.log", stamp))
	if err := os.WriteFile(textPath, []byte(RenderText(s)), 0o644); err != nil {
		return "", err
	}

	yamlPath := filepath.Join(r.logDir, fmt.Sprintf("run_%s.yml", s.RunID))
	bs, err := yaml.Marshal(s)
	if err != nil {
		return textPath, err
	}
	if err := os.WriteFile(yamlPath, bs, 0o644); err != nil {
		return textPath, err
	}

	r.logger.Info("wrote results",
		zap.String("report", textPath),
		zap.String("artifact", yamlPath),
	)
	return textPath, nil
}
