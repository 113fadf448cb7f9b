package discover

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/quayside/stevedore/internal"
	"github.com/quayside/stevedore/internal/config"
)

type Option func(*Scanner)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// Scanner lists the candidate input files under the data directory. The
// listing is a one-time snapshot: files written after Scan returns are
// picked up by the next invocation, never mid-run.
type Scanner struct {
	dataDir       string
	extension     string
	defaultSchema string
	ignoreDirs    map[string]bool
	exclude       *regexp.Regexp

	logger *zap.Logger
}

// New builds a Scanner from the run configuration. The exclude pattern was
// already validated at config load.
func New(c *config.Config, opts ...Option) *Scanner {
	s := &Scanner{
		dataDir:       c.Directories.Data,
		extension:     strings.ToLower(c.Discovery.Extension),
		defaultSchema: c.Database.DefaultSchema,
		ignoreDirs:    make(map[string]bool),
		logger:        zap.NewNop(),
	}
	for _, d := range c.Discovery.IgnoreDirs {
		s.ignoreDirs[d] = true
	}
	if c.Discovery.ExcludePattern != "" {
		s.exclude = regexp.MustCompile(c.Discovery.ExcludePattern)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan returns the files present right now, ordered lexicographically by
// path. Files directly under the data directory carry the default schema;
// first-level subdirectories not in the ignore list are treated as schema
// directories and listed one level deep.
func (s *Scanner) Scan() ([]internal.File, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, err
	}

	var files []internal.File
	for _, e := range entries {
		if e.IsDir() {
			if s.ignoreDirs[e.Name()] {
				s.logger.Debug("skipping ignored directory", zap.String("dir", e.Name()))
				continue
			}
			sub, err := s.scanSchemaDir(e.Name())
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
			continue
		}
		if s.want(e.Name()) {
			files = append(files, internal.File{
				Path:   filepath.Join(s.dataDir, e.Name()),
				Schema: s.defaultSchema,
			})
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	for i := range files {
		files[i].Seq = i
	}

	s.logger.Info("discovered files",
		zap.Int("count", len(files)),
		zap.String("data_dir", s.dataDir),
	)
	return files, nil
}

// scanSchemaDir lists one schema directory. Schema directories are exactly
// one level deep; nested directories are not descended.
func (s *Scanner) scanSchemaDir(schema string) ([]internal.File, error) {
	dir := filepath.Join(s.dataDir, schema)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []internal.File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if s.want(e.Name()) {
			files = append(files, internal.File{
				Path:   filepath.Join(dir, e.Name()),
				Schema: schema,
			})
		}
	}
	return files, nil
}

func (s *Scanner) want(name string) bool {
	if !strings.HasSuffix(strings.ToLower(name), s.extension) {
		return false
	}
	if s.exclude != nil && s.exclude.MatchString(name) {
		return false
	}
	return true
}
