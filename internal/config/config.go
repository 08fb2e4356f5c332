// Package config loads goetia settings from a CUE file.
//
// The file is unified with a closed schema, so unknown fields and values
// outside the allowed sets are rejected with a CUE position. Game constants
// are not configurable; only storage, logging and whisper content are.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/obsidian-innovations/goetia-sub001/internal/whisper"
)

const schema = `
#Config: {
	store: {
		path:    string | *"goetia.db"
		backend: *"sqlite" | "memory"
	}
	log: level: *"info" | "debug" | "warn" | "error"
	whisper: pools: {
		low?:    [string, ...string]
		medium?: [string, ...string]
		high?:   [string, ...string]
	}
}
`

// Config is the decoded configuration.
type Config struct {
	Store   StoreConfig   `json:"store"`
	Log     LogConfig     `json:"log"`
	Whisper WhisperConfig `json:"whisper"`
}

// StoreConfig selects the grimoire backend.
type StoreConfig struct {
	Path    string `json:"path"`
	Backend string `json:"backend"` // "sqlite" | "memory"
}

// LogConfig sets the slog level.
type LogConfig struct {
	Level string `json:"level"`
}

// WhisperConfig overrides whisper content. Empty tiers keep the defaults.
type WhisperConfig struct {
	Pools whisper.Pools `json:"pools"`
}

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg, err := LoadBytes(nil, "default.cue")
	if err != nil {
		panic(fmt.Sprintf("config: default schema does not decode: %v", err))
	}
	return cfg
}

// Load reads and validates the CUE file at path. An empty path returns Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return LoadBytes(data, path)
}

// LoadBytes validates CUE source against the schema and decodes it.
// filename is used in error positions only.
func LoadBytes(data []byte, filename string) (Config, error) {
	ctx := cuecontext.New()

	def := ctx.CompileString(schema).LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return Config{}, fmt.Errorf("config schema: %w", err)
	}

	user := ctx.CompileBytes(data, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", filename, err)
	}

	v := def.Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", filename, err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", filename, err)
	}
	if err := cfg.Whisper.Pools.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return cfg, nil
}

// SlogLevel converts the configured level name.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
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
