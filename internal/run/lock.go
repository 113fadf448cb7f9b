package run

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

// Lock is the loading-in-progress marker that prevents overlapping runs
// against the same configuration. The file lives in the data directory and
// records the holder's PID, so a lock left behind by a killed run can be
// detected as stale and broken.
type Lock struct {
	logger *zap.Logger
	path   string
}

func NewLock(dataDir, filename string, logger *zap.Logger) *Lock {
	return &Lock{
		logger: logger,
		path:   filepath.Join(dataDir, filename),
	}
}

// Acquire takes the lock. Returns false when a live process already holds
// it.
func (l *Lock) Acquire(runID string) (bool, error) {
	if bs, err := os.ReadFile(l.path); err == nil {
		fields := strings.Fields(string(bs))
		if len(fields) > 0 {
			pid, err := strconv.Atoi(fields[0])
			if err == nil && processAlive(pid) {
				l.logger.Warn("another run holds the lock",
					zap.String("lock", l.path),
					zap.Int("pid", pid),
				)
				return false, nil
			}
		}
		l.logger.Warn("breaking stale lock", zap.String("lock", l.path))
		if err := os.Remove(l.path); err != nil {
			return false, err
		}
	}

	contents := fmt.Sprintf("%d %s\n", os.Getpid(), runID)
	if err := os.WriteFile(l.path, []byte(contents), 0o644); err != nil {
		return false, err
	}
	l.logger.Debug("lock acquired", zap.String("lock", l.path))
	return true, nil
}

// Release removes the lock file. Safe to call when the lock was never
// taken.
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
