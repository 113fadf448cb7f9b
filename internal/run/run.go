// Package run drives one orchestrator invocation: lock, semaphore,
// discovery, per-file resolve/hook/load/archive, then summary, pruning and
// notification. Files are processed sequentially in discovery order; one
// bad file never stops the rest.
package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/quayside/stevedore/internal"
	"github.com/quayside/stevedore/internal/archive"
	"github.com/quayside/stevedore/internal/bulkload"
	"github.com/quayside/stevedore/internal/config"
	"github.com/quayside/stevedore/internal/discover"
	"github.com/quayside/stevedore/internal/hooks"
	"github.com/quayside/stevedore/internal/naming"
	"github.com/quayside/stevedore/internal/notify"
	"github.com/quayside/stevedore/internal/report"
)

var (
	// ErrLoadFailures means the run completed but at least one file failed.
	ErrLoadFailures = errors.New("one or more files failed to load")

	// ErrAlreadyRunning means another invocation holds the lock.
	ErrAlreadyRunning = errors.New("another run holds the lock")
)

type Option func(*Runner)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithScanner(s *discover.Scanner) Option {
	return func(r *Runner) {
		r.scanner = s
	}
}

func WithResolver(res *naming.Resolver) Option {
	return func(r *Runner) {
		r.resolver = res
	}
}

func WithExecutor(e *bulkload.Executor) Option {
	return func(r *Runner) {
		r.executor = e
	}
}

func WithHooks(h *hooks.Runner) Option {
	return func(r *Runner) {
		r.hooks = h
	}
}

func WithArchiver(a *archive.Archiver) Option {
	return func(r *Runner) {
		r.archiver = a
	}
}

func WithReporter(rep *report.Reporter) Option {
	return func(r *Runner) {
		r.reporter = rep
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(r *Runner) {
		r.notifier = n
	}
}

// Runner is one orchestrator invocation. All components are wired at
// construction and the configuration is read-only from then on.
type Runner struct {
	logger *zap.Logger
	cfg    *config.Config
	runID  string

	scanner  *discover.Scanner
	resolver *naming.Resolver
	executor *bulkload.Executor
	hooks    *hooks.Runner
	archiver *archive.Archiver
	reporter *report.Reporter
	notifier notify.Notifier
}

func New(cfg *config.Config, runID string, opts ...Option) *Runner {
	r := &Runner{
		logger:   zap.NewNop(),
		cfg:      cfg,
		runID:    runID,
		notifier: notify.Noop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the invocation end to end. The returned error is nil for a
// clean run (including "nothing to do"), ErrAlreadyRunning when the lock is
// held, ErrLoadFailures when any file failed, and anything else for a fatal
// environment problem.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.prepareDirectories(); err != nil {
		return err
	}

	ready, err := waitSemaphore(ctx, r.cfg.Directories.Data, r.cfg.Semaphore, r.logger)
	if err != nil {
		return err
	}
	if !ready {
		return nil
	}

	lock := NewLock(r.cfg.Directories.Data, r.cfg.Lock.Filename, r.logger)
	acquired, err := lock.Acquire(r.runID)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrAlreadyRunning
	}
	defer lock.Release()

	files, err := r.scanner.Scan()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		r.logger.Info("no files to load")
		return r.finish(ctx, false)
	}

	// A run-level pre hook failure means the staging environment is not
	// ready; abort before touching any file.
	if err := r.hooks.RunStart(ctx); err != nil {
		return err
	}

	// Resolve everything up front so post hooks can fire after a table's
	// last file rather than its first.
	resolved := make([]internal.File, 0, len(files))
	pending := make(map[string]int)
	loaded := make(map[string]bool)
	for _, f := range files {
		rf, err := r.resolver.Resolve(f)
		if err != nil {
			outcome := internal.Outcome{
				File:   f,
				Status: internal.StatusFailed,
				Err:    err.Error(),
			}
			r.reporter.Record(outcome)
			r.archive(ctx, outcome)
			continue
		}
		resolved = append(resolved, rf)
		pending[rf.Table]++
	}

	for _, f := range resolved {
		outcome := r.processFile(ctx, f, pending, loaded)
		r.reporter.Record(outcome)
		r.archive(ctx, outcome)
	}

	if err := r.hooks.RunEnd(ctx); err != nil {
		r.logger.Error("run-level post hook failed", zap.Error(err))
	}

	return r.finish(ctx, true)
}

// processFile runs one file through hooks and the loader. Every failure is
// captured in the outcome; processFile never aborts the run.
func (r *Runner) processFile(ctx context.Context, f internal.File, pending map[string]int, loaded map[string]bool) internal.Outcome {
	r.logger.Info("processing file",
		zap.Int("seq", f.Seq),
		zap.String("file", f.Path),
		zap.String("schema", f.Schema),
		zap.String("table", f.Table),
		zap.String("mode", string(f.Mode)),
	)

	var outcome internal.Outcome
	if err := r.hooks.Pre(ctx, f.Table); err != nil {
		outcome = internal.Outcome{File: f, Status: internal.StatusFailed, Err: err.Error()}
	} else if err := r.hooks.TruncateOnce(ctx, f.Schema, f.Table); err != nil {
		outcome = internal.Outcome{File: f, Status: internal.StatusFailed, Err: err.Error()}
	} else {
		outcome = r.executor.Load(ctx, f)
	}

	if !outcome.Failed() {
		loaded[f.Table] = true
	}

	// The post hook fires after the table's last file, and only when at
	// least one file actually loaded; post-load DDL against a table that
	// never received data would act on stale rows.
	pending[f.Table]--
	if pending[f.Table] == 0 && loaded[f.Table] {
		if err := r.hooks.Post(ctx, f.Table); err != nil {
			// The load is already committed; the failure is appended to
			// the outcome, not rolled back.
			r.logger.Error("post hook failed", zap.String("table", f.Table), zap.Error(err))
			outcome.Err = appendError(outcome.Err, err.Error())
		}
	}

	return outcome
}

func (r *Runner) archive(ctx context.Context, outcome internal.Outcome) {
	if err := r.archiver.Archive(ctx, outcome); err != nil {
		// An archive failure never changes the file's load classification.
		r.logger.Error("archive failed",
			zap.String("file", outcome.File.Path),
			zap.Error(err),
		)
	}
}

// finish renders and delivers the summary. Pruning and delivery problems
// are logged; only load failures affect the returned error.
func (r *Runner) finish(ctx context.Context, prune bool) error {
	summary := r.reporter.Summary()

	resultsPath, err := r.reporter.WriteResults(summary)
	if err != nil {
		r.logger.Error("failed to write results", zap.Error(err))
	}

	if prune {
		if err := r.archiver.Prune(); err != nil {
			r.logger.Error("archive pruning failed", zap.Error(err))
		}
	}

	r.notify(ctx, summary, resultsPath)

	r.logger.Info("run complete",
		zap.String("run_id", r.runID),
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("partial", summary.Partial),
		zap.Int("failed", summary.Failed),
	)

	if summary.HasFailures() {
		return ErrLoadFailures
	}
	return nil
}

func (r *Runner) notify(ctx context.Context, summary report.Summary, resultsPath string) {
	status := "Success"
	if summary.HasFailures() {
		status = "Error"
	}
	cluster := r.cfg.Notify.ClusterName
	if cluster == "" {
		cluster = r.cfg.Database.Name
	}
	subject := fmt.Sprintf("%s loading data for cluster %s", status, cluster)

	var body string
	if r.cfg.Notify.HTML {
		html, err := report.RenderHTML(summary)
		if err != nil {
			r.logger.Error("failed to render HTML report", zap.Error(err))
			body = report.RenderText(summary)
		} else {
			body = html
		}
	} else {
		body = report.RenderText(summary)
	}
	if resultsPath != "" && !r.cfg.Notify.HTML {
		body += "\nFull results: " + resultsPath + "\n"
	}

	if err := r.notifier.Notify(ctx, subject, body); err != nil {
		// Delivery failure never changes the run's own exit status.
		r.logger.Error("notification failed", zap.Error(err))
	}
}

// prepareDirectories creates the log and archive directories if needed. The
// data directory must be provisioned externally; its absence is fatal.
func (r *Runner) prepareDirectories() error {
	info, err := os.Stat(r.cfg.Directories.Data)
	if err != nil {
		return fmt.Errorf("data directory %s: %w", r.cfg.Directories.Data, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory %s is not a directory", r.cfg.Directories.Data)
	}

	for _, dir := range []string{r.cfg.Directories.Log, r.cfg.Directories.Archive} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

func appendError(existing, extra string) string {
	if existing == "" {
		return extra
	}
	return strings.TrimSpace(existing) + "; " + extra
}
