package archive

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Prune removes first-level archive directories older than the retention
// window. Directory names are parsed as dates; anything that does not parse
// is left alone. A zero retention means never prune.
func (a *Archiver) Prune() error {
	if a.retentionDays == 0 {
		return nil
	}

	cutoff := a.now().AddDate(0, 0, -a.retentionDays)

	entries, err := os.ReadDir(a.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		day, err := time.Parse(datePartitionLayout, e.Name())
		if err != nil {
			continue
		}
		if !day.Before(cutoff) {
			continue
		}

		full := filepath.Join(a.root, e.Name())
		a.logger.Info("pruning archive directory",
			zap.String("dir", full),
			zap.Time("cutoff", cutoff),
		)
		if err := os.RemoveAll(full); err != nil {
			return err
		}
	}
	return nil
}
