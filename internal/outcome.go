package internal

import "time"

// Status classifies a single file's load attempt.
type Status string

const (
	// StatusSuccess means the loader exited cleanly with no ignored rows.
	StatusSuccess Status = "success"
	// StatusPartial means the loader exited cleanly but ignored some rows
	// within the configured threshold.
	StatusPartial Status = "partial"
	// StatusFailed means the loader exited nonzero, the ignored-row
	// threshold was exceeded, or a pre-load hook failed.
	StatusFailed Status = "failed"
)

// Outcome records the result of one file's load attempt. Immutable once
// appended to the run summary.
type Outcome struct {
	File        File
	Status      Status
	RowsLoaded  int64
	RowsIgnored int64
	ExitCode    int
	Err         string
	Duration    time.Duration
}

// Failed reports whether this outcome counts against the run's exit code.
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}
