package bulkload

import (
	"regexp"
	"strconv"
)

// The loader prints a textual run summary on its output streams. Only the
// row counters are machine-read; everything else is kept verbatim for the
// results file.
var (
	rowsTotalRe  = regexp.MustCompile(`Rows total\s*:\s*(\d+)`)
	rowsLoadedRe = regexp.MustCompile(`Rows successfully loaded\s*:\s*(\d+)`)
	rowsFailedRe = regexp.MustCompile(`Rows failed to load\s*:\s*(\d+)`)
)

// Summary holds the row counters parsed from the loader's output.
type Summary struct {
	Total   int64
	Loaded  int64
	Ignored int64
}

// ParseSummary extracts row counters from loader output. Counters the
// output does not carry stay zero.
func ParseSummary(output string) Summary {
	var s Summary
	s.Total = matchCount(rowsTotalRe, output)
	s.Loaded = matchCount(rowsLoadedRe, output)
	s.Ignored = matchCount(rowsFailedRe, output)
	return s
}

func matchCount(re *regexp.Regexp, output string) int64 {
	m := re.FindStringSubmatch(output)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
