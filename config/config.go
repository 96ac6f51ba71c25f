// Package config loads agentrelay settings from TOML or YAML files with
// AGENTRELAY_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hupe1980/agentrelay/compress"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/schema"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Knowledge store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGENTRELAY_"

// Config is the full relay configuration.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	Packer      PackerConfig      `yaml:"packer" toml:"packer"`
	Compression CompressionConfig `yaml:"compression" toml:"compression"`
	Pipeline    PipelineConfig    `yaml:"pipeline" toml:"pipeline"`
	Knowledge   KnowledgeConfig   `yaml:"knowledge" toml:"knowledge"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" toml:"level"`
	// Format is json or text.
	Format    string `yaml:"format" toml:"format"`
	AddSource bool   `yaml:"add_source" toml:"add_source"`
}

// PackerConfig configures package construction.
type PackerConfig struct {
	PromptVersion   string `yaml:"prompt_version" toml:"prompt_version"`
	DefaultPriority int    `yaml:"default_priority" toml:"default_priority"`
	// SchemaVersion selects the validator revision ("1.0" or "1.1").
	SchemaVersion string `yaml:"schema_version" toml:"schema_version"`
	AutoCompress  bool   `yaml:"auto_compress" toml:"auto_compress"`
}

// CompressionConfig configures the compressor.
type CompressionConfig struct {
	// Strategy is truncate or priority.
	Strategy       string `yaml:"strategy" toml:"strategy"`
	MaxConstraints int    `yaml:"max_constraints" toml:"max_constraints"`
	MaxValueRunes  int    `yaml:"max_value_runes" toml:"max_value_runes"`
	CharsPerToken  int    `yaml:"chars_per_token" toml:"chars_per_token"`
}

// PipelineConfig configures result processing.
type PipelineConfig struct {
	// UpdateStrategy is incremental or replace.
	UpdateStrategy string `yaml:"update_strategy" toml:"update_strategy"`
	SessionID      string `yaml:"session_id" toml:"session_id"`
	Deduplicate    bool   `yaml:"deduplicate" toml:"deduplicate"`
	ArchiveResults bool   `yaml:"archive_results" toml:"archive_results"`
}

// KnowledgeConfig selects the knowledge store.
type KnowledgeConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	// Path is the SQLite database file; ":memory:" keeps it in process.
	Path string `yaml:"path" toml:"path"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Packer: PackerConfig{
			PromptVersion:   core.DefaultPromptVersion,
			DefaultPriority: 5,
			SchemaVersion:   string(schema.Latest),
			AutoCompress:    true,
		},
		Compression: CompressionConfig{
			Strategy:       string(compress.StrategyTruncate),
			MaxConstraints: 5,
			MaxValueRunes:  256,
			CharsPerToken:  4,
		},
		Pipeline: PipelineConfig{
			UpdateStrategy: string(core.UpdateIncremental),
			ArchiveResults: true,
		},
		Knowledge: KnowledgeConfig{
			Driver: DriverMemory,
			Path:   filepath.Join(".agentrelay", "knowledge.db"),
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file yields the (overridden) defaults.
// The format follows the extension: .toml, .yaml or .yml.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.decode(path, data); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) decode(path string, data []byte) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing toml config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing yaml config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	return nil
}

// ApplyEnv overrides fields from AGENTRELAY_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
		return nil
	}
	integer := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("PROMPT_VERSION", &c.Packer.PromptVersion)
	str("SCHEMA_VERSION", &c.Packer.SchemaVersion)
	str("COMPRESSION_STRATEGY", &c.Compression.Strategy)
	str("UPDATE_STRATEGY", &c.Pipeline.UpdateStrategy)
	str("SESSION_ID", &c.Pipeline.SessionID)
	str("KNOWLEDGE_DRIVER", &c.Knowledge.Driver)
	str("KNOWLEDGE_PATH", &c.Knowledge.Path)

	for _, err := range []error{
		integer("DEFAULT_PRIORITY", &c.Packer.DefaultPriority),
		integer("MAX_CONSTRAINTS", &c.Compression.MaxConstraints),
		integer("MAX_VALUE_RUNES", &c.Compression.MaxValueRunes),
		integer("CHARS_PER_TOKEN", &c.Compression.CharsPerToken),
		boolean("LOG_ADD_SOURCE", &c.Logging.AddSource),
		boolean("AUTO_COMPRESS", &c.Packer.AutoCompress),
		boolean("DEDUPLICATE", &c.Pipeline.Deduplicate),
		boolean("ARCHIVE_RESULTS", &c.Pipeline.ArchiveResults),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format %q must be json or text", c.Logging.Format)
	}
	if c.Packer.DefaultPriority < core.MinPriority || c.Packer.DefaultPriority > core.MaxPriority {
		return fmt.Errorf("packer.default_priority must be between 0 and 10, got %d", c.Packer.DefaultPriority)
	}
	if !schema.Version(c.Packer.SchemaVersion).Valid() {
		return fmt.Errorf("packer.schema_version %q must be 1.0 or 1.1", c.Packer.SchemaVersion)
	}
	if !compress.Strategy(c.Compression.Strategy).Valid() {
		return fmt.Errorf("compression.strategy %q must be truncate or priority", c.Compression.Strategy)
	}
	if c.Compression.MaxConstraints < 1 {
		return fmt.Errorf("compression.max_constraints must be at least 1")
	}
	if c.Compression.MaxValueRunes < 1 {
		return fmt.Errorf("compression.max_value_runes must be at least 1")
	}
	if c.Compression.CharsPerToken < 1 {
		return fmt.Errorf("compression.chars_per_token must be at least 1")
	}
	if !core.UpdateStrategy(c.Pipeline.UpdateStrategy).Valid() {
		return fmt.Errorf("pipeline.update_strategy %q must be incremental or replace", c.Pipeline.UpdateStrategy)
	}
	switch c.Knowledge.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Knowledge.Path == "" {
			return fmt.Errorf("knowledge.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("knowledge.driver %q must be memory or sqlite", c.Knowledge.Driver)
	}
	return nil
}
