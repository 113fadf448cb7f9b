package run

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/quayside/stevedore/internal/config"
)

// waitSemaphore blocks until the staging semaphore appears, within the
// configured attempt budget. The semaphore signals that an external actor
// finished writing the data files; it is consumed once observed. A missing
// semaphore after the budget is "nothing to do yet", not an error.
func waitSemaphore(ctx context.Context, dataDir string, cfg config.Semaphore, logger *zap.Logger) (bool, error) {
	if cfg.Filename == "" {
		return true, nil
	}

	path := filepath.Join(dataDir, cfg.Filename)
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if _, err := os.Stat(path); err == nil {
			logger.Info("semaphore observed",
				zap.String("semaphore", path),
				zap.Int("attempt", attempt),
			)
			// Consume it so the next invocation waits for fresh data.
			if err := os.Remove(path); err != nil {
				return false, err
			}
			return true, nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(cfg.Delay):
		}
	}

	logger.Info("semaphore absent, nothing to do",
		zap.String("semaphore", path),
		zap.Int("attempts", cfg.MaxAttempts),
	)
	return false, nil
}
