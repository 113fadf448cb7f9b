// Package archive relocates processed source files into date-partitioned
// archive locations and prunes archives past the retention window.
package archive

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/quayside/stevedore/internal"
	"github.com/quayside/stevedore/internal/config"
)

const datePartitionLayout = "2006-01-02"

type Option func(*Archiver)

func WithLogger(logger *zap.Logger) Option {
	return func(a *Archiver) {
		a.logger = logger
	}
}

func WithRepository(repo internal.Repository) Option {
	return func(a *Archiver) {
		a.repo = repo
	}
}

// WithMirror adds a secondary sink (S3) that receives a copy of every
// archived file.
func WithMirror(mirror internal.Repository) Option {
	return func(a *Archiver) {
		a.mirror = mirror
	}
}

// WithClock overrides time.Now for date partitioning and pruning. Tests
// use this.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) {
		a.now = now
	}
}

// Archiver applies the archive policy to each file after its load attempt.
// An archive failure is logged against the file but never changes its load
// classification.
type Archiver struct {
	logger *zap.Logger
	root   string
	policy string
	move   bool

	defaultSchema string
	retentionDays int

	repo   internal.Repository
	mirror internal.Repository
	now    func() time.Time
}

func New(c *config.Config, opts ...Option) *Archiver {
	a := &Archiver{
		logger:        zap.NewNop(),
		root:          c.Directories.Archive,
		policy:        c.Archive.Policy,
		move:          c.Archive.Mode == "move",
		defaultSchema: c.Database.DefaultSchema,
		retentionDays: c.Archive.RetentionDays,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.repo == nil {
		a.repo = NewLocal(a.root, WithLocalLogger(a.logger))
	}
	return a
}

// Wants reports whether the policy selects this outcome for archival.
func (a *Archiver) Wants(status internal.Status) bool {
	switch a.policy {
	case "always":
		return true
	case "never":
		return false
	case "on-success":
		return status == internal.StatusSuccess || status == internal.StatusPartial
	case "on-error":
		return status == internal.StatusFailed
	case "on-bad-rows":
		return status == internal.StatusPartial || status == internal.StatusFailed
	}
	return false
}

// Archive relocates one processed file per the policy. The destination is
// <root>/<date>/<schema>/<basename>; files that sat directly under the data
// directory keep no schema segment. In move mode the source is removed only
// after the archive write succeeded.
func (a *Archiver) Archive(ctx context.Context, outcome internal.Outcome) error {
	if !a.Wants(outcome.Status) {
		a.logger.Debug("policy leaves file in place",
			zap.String("file", outcome.File.Path),
			zap.String("policy", a.policy),
		)
		return nil
	}

	key := a.key(outcome.File)

	src, err := os.Open(outcome.File.Path)
	if err != nil {
		return err
	}

	if err := a.repo.Write(ctx, key, src); err != nil {
		src.Close()
		return err
	}
	src.Close()

	if a.mirror != nil {
		src, err := os.Open(outcome.File.Path)
		if err != nil {
			return err
		}
		err = a.mirror.Write(ctx, key, src)
		src.Close()
		if err != nil {
			// The local archive copy is already safe; a mirror failure
			// must not block the move.
			a.logger.Warn("archive mirror write failed",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	if a.move {
		if err := os.Remove(outcome.File.Path); err != nil {
			return err
		}
	}

	a.logger.Info("archived file",
		zap.String("file", outcome.File.Path),
		zap.String("key", key),
		zap.Bool("moved", a.move),
	)
	return nil
}

func (a *Archiver) key(f internal.File) string {
	date := a.now().Format(datePartitionLayout)
	base := filepath.Base(f.Path)
	if f.Schema == "" || f.Schema == a.defaultSchema {
		return filepath.Join(date, base)
	}
	return filepath.Join(date, f.Schema, base)
}
