package internal

// LoadMode controls whether the target table is emptied before loading.
type LoadMode string

const (
	// LoadModeDefault defers to the configured truncate-before-load default.
	LoadModeDefault LoadMode = "default"
	// LoadModeFull empties the target before loading.
	LoadModeFull LoadMode = "full"
	// LoadModeIncremental always appends.
	LoadModeIncremental LoadMode = "incremental"
)

// File is a single discovered input file together with its resolved target.
// The (schema, table) mapping is a pure function of the file path and the
// run configuration; it never changes once resolved.
type File struct {
	Path   string
	Schema string
	Table  string
	Mode   LoadMode

	// Seq is the file's position in discovery order within the run.
	Seq int
}
