// Package notify delivers the end-of-run summary. Delivery failures are
// logged by the caller and never change the run's exit status.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier delivers one run summary.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
	Close() error
}

// Log writes the summary to the run log. It is the default channel.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, subject, body string) error {
	l.logger.Info("run summary",
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}

func (l *Log) Close() error {
	return nil
}

// Noop drops the summary. Used when notify.method is none.
type Noop struct{}

func (Noop) Notify(ctx context.Context, subject, body string) error {
	return nil
}

func (Noop) Close() error {
	return nil
}
