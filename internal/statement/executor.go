// Package statement executes single data-definition statements for hooks
// and manual truncates. Two executors exist: the vendor statement CLI,
// matching how operators run these by hand, and a direct SQL connection for
// Postgres-compatible targets.
package statement

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Executor accepts one statement string per invocation.
type Executor interface {
	Execute(ctx context.Context, stmt string) error
	Close() error
}

type CLIOption func(*CLI)

func WithLogger(logger *zap.Logger) CLIOption {
	return func(c *CLI) {
		c.logger = logger
	}
}

// CLI pipes statements through the vendor statement shell, one process per
// statement. The target database is selected with a use statement first.
type CLI struct {
	logger   *zap.Logger
	binary   string
	database string
}

func NewCLI(binary, database string, opts ...CLIOption) *CLI {
	c := &CLI{
		logger:   zap.NewNop(),
		binary:   binary,
		database: database,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CLI) Execute(ctx context.Context, stmt string) error {
	stmt = strings.TrimSpace(stmt)
	if !strings.HasSuffix(stmt, ";") {
		stmt += ";"
	}
	script := fmt.Sprintf("use %s;\n%s\n", c.database, stmt)

	cmd := exec.CommandContext(ctx, c.binary)
	cmd.Stdin = strings.NewReader(script)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	c.logger.Debug("executing statement",
		zap.String("binary", c.binary),
		zap.String("statement", stmt),
	)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("statement %q: %w: %s", stmt, err, strings.TrimSpace(out.String()))
	}
	return nil
}

func (c *CLI) Close() error {
	return nil
}
