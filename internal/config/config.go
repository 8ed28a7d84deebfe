// Package config loads the workstation configuration of the deletion audit.
//
// The file is YAML. It is checked against an embedded CUE schema before it
// is decoded, so unknown keys and out-of-range values are reported together
// with their location instead of being silently ignored.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/roach88/deleteaudit/internal/gate"
	"github.com/roach88/deleteaudit/internal/persist"
)

//go:embed schema.cue
var schemaSource string

// DefaultFlushInterval is the periodic flush cadence.
const DefaultFlushInterval = 15 * time.Minute

// ErrInvalid is returned for configuration that does not match the schema.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration with defaults applied.
type Config struct {
	SharedRoot       string
	UsersDir         string
	AllowListPattern string
	FlushInterval    time.Duration
	Retry            Retry
	// JournalPath is the SQLite cycle journal. Empty disables the journal.
	JournalPath  string
	CarryForward bool
	Log          Log
}

// Retry configures the persister back-off.
type Retry struct {
	Attempts int
	Delay    time.Duration
}

// Log configures the slog handler.
type Log struct {
	Level  string
	Format string
}

// Default returns the configuration used when a key is absent.
// SharedRoot has no default.
func Default() Config {
	return Config{
		AllowListPattern: gate.DefaultPattern,
		FlushInterval:    DefaultFlushInterval,
		Retry: Retry{
			Attempts: persist.DefaultAttempts,
			Delay:    persist.DefaultDelay,
		},
		CarryForward: true,
		Log:          Log{Level: "info", Format: "text"},
	}
}

// file mirrors the YAML document. Pointers distinguish absent keys.
type file struct {
	SharedRoot       string `yaml:"shared_root"`
	UsersDir         string `yaml:"users_dir"`
	AllowListPattern string `yaml:"allow_list_pattern"`
	FlushInterval    string `yaml:"flush_interval"`
	Retry            struct {
		Attempts int    `yaml:"attempts"`
		Delay    string `yaml:"delay"`
	} `yaml:"retry"`
	JournalPath  string `yaml:"journal_path"`
	CarryForward *bool  `yaml:"carry_forward"`
	Log          struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads and parses the configuration at path.
func Load(fs afero.Fs, path string) (Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates data against the schema and resolves defaults.
func Parse(data []byte) (Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := validate(raw); err != nil {
		return Config{}, err
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return resolve(f)
}

func validate(raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	value := def.Unify(ctx.Encode(raw))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func resolve(f file) (Config, error) {
	cfg := Default()
	cfg.SharedRoot = f.SharedRoot
	cfg.UsersDir = f.UsersDir
	if cfg.UsersDir == "" {
		cfg.UsersDir = cfg.SharedRoot
	}
	if f.AllowListPattern != "" {
		cfg.AllowListPattern = f.AllowListPattern
	}
	cfg.JournalPath = f.JournalPath
	if f.CarryForward != nil {
		cfg.CarryForward = *f.CarryForward
	}
	if f.Retry.Attempts > 0 {
		cfg.Retry.Attempts = f.Retry.Attempts
	}
	if f.Log.Level != "" {
		cfg.Log.Level = f.Log.Level
	}
	if f.Log.Format != "" {
		cfg.Log.Format = f.Log.Format
	}

	var err error
	if cfg.FlushInterval, err = duration("flush_interval", f.FlushInterval, cfg.FlushInterval); err != nil {
		return Config{}, err
	}
	if cfg.Retry.Delay, err = duration("retry.delay", f.Retry.Delay, cfg.Retry.Delay); err != nil {
		return Config{}, err
	}
	if cfg.FlushInterval <= 0 {
		return Config{}, fmt.Errorf("%w: flush_interval must be positive", ErrInvalid)
	}
	return cfg, nil
}

func duration(key, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
	return d, nil
}

// SlogLevel maps Log.Level to a slog level. Unknown names map to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// PersistOptions returns the persister options for the retry settings.
func (c Config) PersistOptions() []persist.Option {
	return []persist.Option{
		persist.WithAttempts(c.Retry.Attempts),
		persist.WithDelay(c.Retry.Delay),
	}
}
