// Package hooks runs the optional per-table and whole-run actions around
// loads: shell commands, data-definition statements, and the once-per-table
// manual truncate. Hook state is scoped to a single run and held in memory.
package hooks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/quayside/stevedore/internal/config"
	"github.com/quayside/stevedore/internal/statement"
)

// Error is a hook failure. A pre failure aborts the affected file's load;
// a post failure is recorded but never rolls anything back.
type Error struct {
	Table string
	Phase string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("hooks: table %s %s: %v", e.Table, e.Phase, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PollResult is the outcome of waiting on a completion marker.
type PollResult int

const (
	PollCompleted PollResult = iota
	PollTimedOut
)

// tableState tracks which one-time actions have fired for a table this run.
type tableState struct {
	preFired    bool
	preErr      error
	truncated   bool
	truncateErr error
	postFired   bool
}

type Option func(*Runner)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// Runner executes hooks at most once per table per run. Not safe for
// concurrent use; the run processes files sequentially.
type Runner struct {
	logger *zap.Logger
	tables map[string]config.TableHooks
	poll   config.Poll
	exec   statement.Executor
	states map[string]*tableState
}

func New(c *config.Config, exec statement.Executor, opts ...Option) *Runner {
	r := &Runner{
		logger: zap.NewNop(),
		tables: c.Hooks.Tables,
		poll:   c.Hooks.Poll,
		exec:   exec,
		states: make(map[string]*tableState),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunStart fires the whole-run pre hooks, once, before the first file.
func (r *Runner) RunStart(ctx context.Context) error {
	return r.Pre(ctx, config.RunKey)
}

// RunEnd fires the whole-run post hooks, once, after the last file.
func (r *Runner) RunEnd(ctx context.Context) error {
	return r.Post(ctx, config.RunKey)
}

// Pre runs the table's pre-load shell command and statement. The first call
// for a table does the work; every later call returns the first call's
// result, so a failed pre hook fails every file mapping to that table.
func (r *Runner) Pre(ctx context.Context, table string) error {
	st := r.state(table)
	if st.preFired {
		return st.preErr
	}
	st.preFired = true

	h, ok := r.tables[table]
	if !ok {
		return nil
	}

	if h.PreCommand != "" {
		if err := r.command(ctx, h.PreCommand, h.PreCommandMarker); err != nil {
			st.preErr = &Error{Table: table, Phase: "pre command", Err: err}
			return st.preErr
		}
	}
	if h.PreStatement != "" {
		if err := r.exec.Execute(ctx, h.PreStatement); err != nil {
			st.preErr = &Error{Table: table, Phase: "pre statement", Err: err}
			return st.preErr
		}
	}
	return nil
}

// TruncateOnce issues the table's manual truncate statement if configured,
// at most once per run. Multi-part loads rely on this firing only before
// the table's first file. A failed truncate is sticky: every later file of
// the table gets the same failure back, so nothing loads onto stale rows.
func (r *Runner) TruncateOnce(ctx context.Context, schema, table string) error {
	h, ok := r.tables[table]
	if !ok || !h.Truncate {
		return nil
	}

	st := r.state(table)
	if st.truncated {
		return st.truncateErr
	}
	st.truncated = true

	target := table
	if schema != "" && schema != config.DefaultSchema {
		target = schema + "." + table
	}

	r.logger.Info("truncating table", zap.String("table", target))
	if err := r.exec.Execute(ctx, "TRUNCATE TABLE "+target+";"); err != nil {
		st.truncateErr = &Error{Table: table, Phase: "truncate", Err: err}
		return st.truncateErr
	}
	return nil
}

// Post runs the table's post-load statement and shell command, once. The
// orchestrator calls this after the table's last file; repeat calls are
// no-ops.
func (r *Runner) Post(ctx context.Context, table string) error {
	st := r.state(table)
	if st.postFired {
		return nil
	}
	st.postFired = true

	h, ok := r.tables[table]
	if !ok {
		return nil
	}

	if h.PostStatement != "" {
		if err := r.exec.Execute(ctx, h.PostStatement); err != nil {
			return &Error{Table: table, Phase: "post statement", Err: err}
		}
	}
	if h.PostCommand != "" {
		if err := r.command(ctx, h.PostCommand, h.PostCommandMarker); err != nil {
			return &Error{Table: table, Phase: "post command", Err: err}
		}
	}
	return nil
}

func (r *Runner) state(table string) *tableState {
	st, ok := r.states[table]
	if !ok {
		st = &tableState{}
		r.states[table] = st
	}
	return st
}

// command runs a shell hook. A launched command may hand work off and
// return early, so completion is signalled by a marker file when one is
// configured; the marker is consumed once seen.
func (r *Runner) command(ctx context.Context, cmdline, marker string) error {
	r.logger.Info("running hook command", zap.String("command", cmdline))

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(out))
	}

	if marker == "" {
		return nil
	}

	result, err := r.awaitMarker(ctx, marker)
	if err != nil {
		return err
	}
	if result == PollTimedOut {
		return fmt.Errorf("no completion marker %s after %d attempts", marker, r.poll.MaxAttempts)
	}
	return nil
}

// awaitMarker polls for the marker file with a bounded attempt budget.
// Exhaustion is a timeout, not a hang.
func (r *Runner) awaitMarker(ctx context.Context, marker string) (PollResult, error) {
	for attempt := 1; attempt <= r.poll.MaxAttempts; attempt++ {
		if _, err := os.Stat(marker); err == nil {
			os.Remove(marker)
			r.logger.Debug("hook completion marker found",
				zap.String("marker", marker),
				zap.Int("attempt", attempt),
			)
			return PollCompleted, nil
		}

		if attempt == r.poll.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return PollTimedOut, ctx.Err()
		case <-time.After(r.poll.Delay):
		}
	}
	return PollTimedOut, nil
}
