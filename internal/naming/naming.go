package naming

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/quayside/stevedore/internal"
	"github.com/quayside/stevedore/internal/config"
)

// ResolutionError marks a file whose name reduced to nothing after the
// stripping rules. The file is failed rather than guessed at.
type ResolutionError struct {
	Path string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("naming: no table name left after stripping %q", e.Path)
}

// Resolver derives the target table and load mode from a file name. The
// rules are an ordered list of pure string transformations: extension off,
// mode suffix off, strip patterns applied left to right, then truncation at
// the first separator. Table names are emitted lowercase; the platform
// matches table names case-insensitively.
type Resolver struct {
	extension         string
	separator         string
	fullSuffix        string
	incrementalSuffix string
	strip             []*regexp.Regexp
}

// New builds a Resolver from the run configuration. Strip patterns were
// already validated at config load.
func New(c *config.Config) *Resolver {
	r := &Resolver{
		extension:         strings.ToLower(c.Discovery.Extension),
		separator:         c.Naming.Separator,
		fullSuffix:        c.Naming.FullSuffix,
		incrementalSuffix: c.Naming.IncrementalSuffix,
	}
	for _, p := range c.Naming.StripPatterns {
		r.strip = append(r.strip, regexp.MustCompile(p))
	}
	return r
}

// Resolve fills in the file's table and load mode. The schema was assigned
// at discovery; Resolve never changes it.
func (r *Resolver) Resolve(f internal.File) (internal.File, error) {
	name := filepath.Base(f.Path)

	if ext := filepath.Ext(name); strings.ToLower(ext) == r.extension {
		name = name[:len(name)-len(ext)]
	}
	// A trailing dot left behind by a dotless extension config would never
	// be a valid table name.
	name = strings.TrimSuffix(name, ".")

	f.Mode = internal.LoadModeDefault
	switch {
	case r.fullSuffix != "" && strings.HasSuffix(name, r.fullSuffix):
		f.Mode = internal.LoadModeFull
		name = strings.TrimSuffix(name, r.fullSuffix)
	case r.incrementalSuffix != "" && strings.HasSuffix(name, r.incrementalSuffix):
		f.Mode = internal.LoadModeIncremental
		name = strings.TrimSuffix(name, r.incrementalSuffix)
	}

	for _, re := range r.strip {
		name = re.ReplaceAllString(name, "")
	}

	if r.separator != "" {
		if i := strings.Index(name, r.separator); i >= 0 {
			name = name[:i]
		}
	}

	if name == "" {
		return f, &ResolutionError{Path: f.Path}
	}

	f.Table = strings.ToLower(name)
	return f, nil
}
