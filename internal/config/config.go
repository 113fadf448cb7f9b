package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RunKey is the reserved hooks table key whose hooks fire once per run,
// before the first file and after the last.
const RunKey = "*"

// DefaultSchema is the platform's default-schema sentinel, used for files
// that sit directly under the data directory.
const DefaultSchema = "falcon_default_schema"

// Error is a fatal configuration error. It aborts the run before any file
// is touched.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

type Logger struct {
	Level string `mapstructure:"level"`
}

type Database struct {
	Name          string `mapstructure:"name"`
	DefaultSchema string `mapstructure:"default_schema"`

	// ConnectionString, when set, routes hook statements and manual
	// truncates over SQL instead of the vendor statement CLI.
	ConnectionString string `mapstructure:"connection_string"`
}

type Directories struct {
	Data    string `mapstructure:"data"`
	Archive string `mapstructure:"archive"`
	Log     string `mapstructure:"log"`
}

type Discovery struct {
	Extension      string   `mapstructure:"extension"`
	IgnoreDirs     []string `mapstructure:"ignore_dirs"`
	ExcludePattern string   `mapstructure:"exclude_pattern"`
}

type Naming struct {
	Separator         string   `mapstructure:"separator"`
	FullSuffix        string   `mapstructure:"full_suffix"`
	IncrementalSuffix string   `mapstructure:"incremental_suffix"`
	StripPatterns     []string `mapstructure:"strip_patterns"`
}

type Loader struct {
	Binary          string `mapstructure:"binary"`
	StatementBinary string `mapstructure:"statement_binary"`

	FieldSeparator        string `mapstructure:"field_separator"`
	EnclosingCharacter    string `mapstructure:"enclosing_character"`
	EscapeCharacter       string `mapstructure:"escape_character"`
	NullValue             string `mapstructure:"null_value"`
	HasHeaderRow          bool   `mapstructure:"has_header_row"`
	DateFormat            string `mapstructure:"date_format"`
	DateTimeFormat        string `mapstructure:"date_time_format"`
	BooleanRepresentation string `mapstructure:"boolean_representation"`
	MaxIgnoredRows        int64  `mapstructure:"max_ignored_rows"`
	Verbosity             int    `mapstructure:"verbosity"`

	// TruncateBeforeLoad is the empty-target default for files whose name
	// carries neither the full nor the incremental suffix.
	TruncateBeforeLoad bool `mapstructure:"truncate_before_load"`

	// Flags are passed through to the loader verbatim: "true" values become
	// bare switches, "false" values are omitted, anything else is emitted as
	// --key value.
	Flags map[string]string `mapstructure:"flags"`
}

type Poll struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

// TableHooks are the optional per-table actions around a load. Each fires at
// most once per run regardless of how many files map to the table.
type TableHooks struct {
	PreCommand       string `mapstructure:"pre_command"`
	PreCommandMarker string `mapstructure:"pre_command_marker"`
	PreStatement     string `mapstructure:"pre_statement"`

	// Truncate empties the table once via a statement before its first
	// load. Mutually exclusive with loader.truncate_before_load.
	Truncate bool `mapstructure:"truncate"`

	PostStatement     string `mapstructure:"post_statement"`
	PostCommand       string `mapstructure:"post_command"`
	PostCommandMarker string `mapstructure:"post_command_marker"`
}

type Hooks struct {
	Poll   Poll                  `mapstructure:"poll"`
	Tables map[string]TableHooks `mapstructure:"tables"`
}

type S3 struct {
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Prefix         string `mapstructure:"prefix"`
	Endpoint       string `mapstructure:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

type Archive struct {
	Policy        string `mapstructure:"policy"`
	Mode          string `mapstructure:"mode"`
	RetentionDays int    `mapstructure:"retention_days"`
	S3            S3     `mapstructure:"s3"`
}

type Semaphore struct {
	Filename    string        `mapstructure:"filename"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

type Lock struct {
	Filename string `mapstructure:"filename"`
}

type Email struct {
	Server   string   `mapstructure:"server"`
	Port     int      `mapstructure:"port"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
	Password string   `mapstructure:"password"`
}

type Kafka struct {
	BootstrapServers string `mapstructure:"bootstrap_servers"`
	Topic            string `mapstructure:"topic"`
}

type Notify struct {
	Method      string `mapstructure:"method"`
	ClusterName string `mapstructure:"cluster_name"`
	HTML        bool   `mapstructure:"html"`
	Email       Email  `mapstructure:"email"`
	Kafka       Kafka  `mapstructure:"kafka"`
}

// Config is the immutable run configuration. It is built once per
// invocation and passed read-only to every component.
type Config struct {
	Logger      Logger      `mapstructure:"logger"`
	Database    Database    `mapstructure:"database"`
	Directories Directories `mapstructure:"directories"`
	Discovery   Discovery   `mapstructure:"discovery"`
	Naming      Naming      `mapstructure:"naming"`
	Loader      Loader      `mapstructure:"loader"`
	Hooks       Hooks       `mapstructure:"hooks"`
	Archive     Archive     `mapstructure:"archive"`
	Semaphore   Semaphore   `mapstructure:"semaphore"`
	Lock        Lock        `mapstructure:"lock"`
	Notify      Notify      `mapstructure:"notify"`
}

var archivePolicies = map[string]bool{
	"always":      true,
	"on-success":  true,
	"on-error":    true,
	"on-bad-rows": true,
	"never":       true,
}

var archiveModes = map[string]bool{
	"move": true,
	"copy": true,
}

var notifyMethods = map[string]bool{
	"none":  true,
	"log":   true,
	"email": true,
	"kafka": true,
}

// New reads the settings file at path, applies STEVEDORE_ environment
// overrides and defaults, and validates the result. The file may be YAML or
// JSON; viper dispatches on the extension.
func New(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("STEVEDORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, &Error{Key: path, Reason: err.Error()}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, &Error{Key: path, Reason: err.Error()}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("database.default_schema", DefaultSchema)
	v.SetDefault("naming.full_suffix", "_full")
	v.SetDefault("naming.incremental_suffix", "_incremental")
	v.SetDefault("loader.binary", "tsload")
	v.SetDefault("loader.statement_binary", "tql")
	v.SetDefault("loader.field_separator", ",")
	v.SetDefault("hooks.poll.max_attempts", 10)
	v.SetDefault("hooks.poll.delay", 3*time.Second)
	v.SetDefault("archive.policy", "always")
	v.SetDefault("archive.mode", "move")
	v.SetDefault("semaphore.max_attempts", 1)
	v.SetDefault("semaphore.delay", 5*time.Second)
	v.SetDefault("lock.filename", "load_file")
	v.SetDefault("notify.method", "log")
}

func (c *Config) validate() error {
	required := []struct{ key, val string }{
		{"directories.data", c.Directories.Data},
		{"directories.archive", c.Directories.Archive},
		{"directories.log", c.Directories.Log},
		{"discovery.extension", c.Discovery.Extension},
		{"database.name", c.Database.Name},
	}
	for _, r := range required {
		if r.val == "" {
			return &Error{Key: r.key, Reason: "required key is missing"}
		}
	}

	if !strings.HasPrefix(c.Discovery.Extension, ".") {
		return &Error{Key: "discovery.extension", Reason: "must start with a dot"}
	}

	if !archivePolicies[c.Archive.Policy] {
		return &Error{Key: "archive.policy", Reason: fmt.Sprintf("unrecognized policy %q", c.Archive.Policy)}
	}
	if !archiveModes[c.Archive.Mode] {
		return &Error{Key: "archive.mode", Reason: fmt.Sprintf("unrecognized mode %q", c.Archive.Mode)}
	}
	if !notifyMethods[c.Notify.Method] {
		return &Error{Key: "notify.method", Reason: fmt.Sprintf("unrecognized method %q", c.Notify.Method)}
	}
	if c.Archive.RetentionDays < 0 {
		return &Error{Key: "archive.retention_days", Reason: "must not be negative"}
	}

	if c.Discovery.ExcludePattern != "" {
		if _, err := regexp.Compile(c.Discovery.ExcludePattern); err != nil {
			return &Error{Key: "discovery.exclude_pattern", Reason: err.Error()}
		}
	}
	for _, p := range c.Naming.StripPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return &Error{Key: "naming.strip_patterns", Reason: fmt.Sprintf("%q: %s", p, err)}
		}
	}

	// The loader-level empty-target default and a manual per-table truncate
	// are two implementations of the same thing. Configuring both is
	// ambiguous for multi-part loads, so it is rejected outright.
	if c.Loader.TruncateBeforeLoad {
		for table, h := range c.Hooks.Tables {
			if h.Truncate {
				return &Error{
					Key:    fmt.Sprintf("hooks.tables.%s.truncate", table),
					Reason: "conflicts with loader.truncate_before_load; configure one or the other",
				}
			}
		}
	}

	// A configured marker or semaphore with a non-positive attempt budget
	// would fail or skip instantly instead of polling.
	if c.Semaphore.Filename != "" && c.Semaphore.MaxAttempts < 1 {
		return &Error{Key: "semaphore.max_attempts", Reason: "must be at least 1 when a semaphore filename is configured"}
	}
	for table, h := range c.Hooks.Tables {
		if (h.PreCommandMarker != "" || h.PostCommandMarker != "") && c.Hooks.Poll.MaxAttempts < 1 {
			return &Error{
				Key:    "hooks.poll.max_attempts",
				Reason: fmt.Sprintf("must be at least 1; table %s configures a command marker", table),
			}
		}
	}

	if h, ok := c.Hooks.Tables[RunKey]; ok && h.Truncate {
		return &Error{
			Key:    fmt.Sprintf("hooks.tables.%s.truncate", RunKey),
			Reason: "the run-level hook entry cannot truncate",
		}
	}

	if c.Notify.Method == "email" {
		if c.Notify.Email.Server == "" {
			return &Error{Key: "notify.email.server", Reason: "required when notify.method is email"}
		}
		if len(c.Notify.Email.To) == 0 {
			return &Error{Key: "notify.email.to", Reason: "required when notify.method is email"}
		}
	}
	if c.Notify.Method == "kafka" {
		if c.Notify.Kafka.BootstrapServers == "" {
			return &Error{Key: "notify.kafka.bootstrap_servers", Reason: "required when notify.method is kafka"}
		}
		if c.Notify.Kafka.Topic == "" {
			return &Error{Key: "notify.kafka.topic", Reason: "required when notify.method is kafka"}
		}
	}

	return nil
}
