// Package config handles the pyrewind.toml configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/roach88/pyrewind/internal/engine"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "pyrewind.toml"

// Config is the pyrewind.toml configuration.
type Config struct {
	Engine Engine `toml:"engine"`
	Layout Layout `toml:"layout"`
	Store  Store  `toml:"store"`
	Log    Log    `toml:"log"`

	// Path is the file the configuration was read from, "" for defaults.
	Path string `toml:"-"`
}

// Engine configures navigation calls.
type Engine struct {
	// MaxSteps is the default step ceiling per navigation call, 0 for none.
	MaxSteps     int  `toml:"max_steps"`
	ParkOnCancel bool `toml:"park_on_cancel"`
}

// Layout selects the introspection schema.
type Layout struct {
	// Path is a CUE schema file; "" means the embedded one.
	Path string `toml:"path"`
}

// Store configures the recordings database.
type Store struct {
	Path string `toml:"path"`
}

// Log configures logging.
type Log struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Engine: Engine{MaxSteps: engine.DefaultMaxSteps, ParkOnCancel: true},
		Store:  Store{Path: "pyrewind.db"},
		Log:    Log{Level: "info"},
	}
}

// Load reads a configuration file over the defaults. Unknown keys are
// rejected so a misspelled setting is not silently ignored.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Find loads pyrewind.toml from dir, or returns the defaults if there is
// none.
func Find(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return Load(path)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Engine.MaxSteps < 0 {
		return fmt.Errorf("engine.max_steps must be >= 0, got %d", c.Engine.MaxSteps)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	lvl, _ := ParseLevel(c.Log.Level)
	return lvl
}

// EngineOptions returns the engine options the configuration selects.
func (c *Config) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithMaxSteps(c.Engine.MaxSteps),
		engine.WithParkOnCancel(c.Engine.ParkOnCancel),
	}
}

// ParseLevel parses debug, info, warn or error. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
