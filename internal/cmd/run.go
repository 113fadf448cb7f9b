package cmd

import (
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quayside/stevedore/internal/archive"
	"github.com/quayside/stevedore/internal/bulkload"
	"github.com/quayside/stevedore/internal/config"
	"github.com/quayside/stevedore/internal/discover"
	"github.com/quayside/stevedore/internal/hooks"
	"github.com/quayside/stevedore/internal/naming"
	"github.com/quayside/stevedore/internal/notify"
	"github.com/quayside/stevedore/internal/report"
	"github.com/quayside/stevedore/internal/run"
	"github.com/quayside/stevedore/internal/statement"
)

// defaultSettings is used when -f is omitted and STEVEDORE_SETTINGS is
// unset.
const defaultSettings = "settings.yml"

func newRunCommand() *cobra.Command {
	var settingsPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one load pass over the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd, settingsPath)
		},
	}

	cmd.Flags().StringVarP(&settingsPath, "settings", "f", "", "Path to the settings file")

	return cmd
}

func executeRun(cmd *cobra.Command, settingsPath string) error {
	ctx := cmd.Context()

	if settingsPath == "" {
		settingsPath = os.Getenv("STEVEDORE_SETTINGS")
	}
	if settingsPath == "" {
		settingsPath = defaultSettings
	}

	c, err := config.New(settingsPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(c.Logger.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()
	l := logger.Named("stevedore.run")

	runID := uuid.Must(uuid.NewUUID()).String()
	l.Info("starting run",
		zap.String("run_id", runID),
		zap.String("settings", settingsPath),
		zap.String("database", c.Database.Name),
	)

	c.LintStatements(l)

	stmtExec, err := newStatementExecutor(cmd, c, l)
	if err != nil {
		return err
	}
	defer stmtExec.Close()

	notifier, err := newNotifier(c, l)
	if err != nil {
		return err
	}
	defer notifier.Close()

	archiveOpts := []archive.Option{
		archive.WithLogger(l.Named("archive")),
	}
	if c.Archive.S3.Bucket != "" {
		mirror, err := archive.NewS3(c.Archive.S3, archive.WithS3Logger(l.Named("archive.s3")))
		if err != nil {
			return err
		}
		archiveOpts = append(archiveOpts, archive.WithMirror(mirror))
	}

	runner := run.New(c, runID,
		run.WithLogger(l),
		run.WithScanner(discover.New(c, discover.WithLogger(l.Named("discover")))),
		run.WithResolver(naming.New(c)),
		run.WithExecutor(bulkload.New(c, bulkload.WithLogger(l.Named("bulkload")))),
		run.WithHooks(hooks.New(c, stmtExec, hooks.WithLogger(l.Named("hooks")))),
		run.WithArchiver(archive.New(c, archiveOpts...)),
		run.WithReporter(report.New(runID, c.Database.Name, c.Directories.Log,
			report.WithLogger(l.Named("report")))),
		run.WithNotifier(notifier),
	)

	return runner.Run(ctx)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, &config.Error{Key: "logger.level", Reason: err.Error()}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func newStatementExecutor(cmd *cobra.Command, c *config.Config, l *zap.Logger) (statement.Executor, error) {
	if c.Database.ConnectionString != "" {
		return statement.NewSQL(cmd.Context(), c.Database.ConnectionString,
			statement.WithSQLLogger(l.Named("statement")))
	}
	return statement.NewCLI(c.Loader.StatementBinary, c.Database.Name,
		statement.WithLogger(l.Named("statement"))), nil
}

func newNotifier(c *config.Config, l *zap.Logger) (notify.Notifier, error) {
	switch c.Notify.Method {
	case "email":
		return notify.NewEmail(c.Notify.Email, c.Notify.HTML,
			notify.WithEmailLogger(l.Named("notify"))), nil
	case "kafka":
		return notify.NewKafka(c.Notify.Kafka,
			notify.WithKafkaLogger(l.Named("notify")))
	case "none":
		return notify.Noop{}, nil
	default:
		return notify.NewLog(l.Named("notify")), nil
	}
}
