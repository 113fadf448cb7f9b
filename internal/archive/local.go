package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

type LocalOption func(*Local)

func WithLocalLogger(logger *zap.Logger) LocalOption {
	return func(l *Local) {
		l.logger = logger
	}
}

// Local writes archived files under the archive root on the local
// filesystem.
type Local struct {
	logger   *zap.Logger
	basePath string
}

func NewLocal(basePath string, opts ...LocalOption) *Local {
	l := &Local{
		logger:   zap.NewNop(),
		basePath: basePath,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) Write(ctx context.Context, key string, reader io.Reader) error {
	fullPath := filepath.Join(l.basePath, key)
	l.logger.Debug("writing archive file", zap.String("path", fullPath))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return err
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(file, reader)
	return err
}
