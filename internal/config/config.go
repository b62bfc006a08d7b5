package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/binlift/internal/log"
)

// Config holds all configuration for binlift
type Config struct {
	// LibBase is the starting value of the library address counter
	LibBase uint64 `yaml:"lib_base" env:"BINLIFT_LIB_BASE"`

	// LibBaseStep is the distance between consecutive library base addresses
	LibBaseStep uint64 `yaml:"lib_base_step" env:"BINLIFT_LIB_BASE_STEP"`

	// SearchPaths are directories searched for DT_NEEDED libraries after the
	// directory of the root binary
	SearchPaths []string `yaml:"search_paths" env:"BINLIFT_SEARCH_PATHS"`

	// MaxSegmentSize caps a single PT_LOAD segment; 0 uses the loader default
	MaxSegmentSize uint64 `yaml:"max_segment_size" env:"BINLIFT_MAX_SEGMENT_SIZE"`

	// File image cache
	CachePath     string `yaml:"cache_path" env:"BINLIFT_CACHE_PATH"`
	CacheSize     int    `yaml:"cache_size" env:"BINLIFT_CACHE_SIZE"`
	CacheMaxBytes int64  `yaml:"cache_max_bytes" env:"BINLIFT_CACHE_MAX_BYTES"`

	// Demangle C++ symbol names in output
	Demangle bool `yaml:"demangle" env:"BINLIFT_DEMANGLE"`

	// Logging. Verbose forces the debug level.
	LogLevel string `yaml:"log_level" env:"BINLIFT_LOG_LEVEL"`
	Verbose  bool   `yaml:"verbose" env:"BINLIFT_VERBOSE"`
	LogJSON  bool   `yaml:"log_json" env:"BINLIFT_LOG_JSON"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LibBase:     0x80000000,
		LibBaseStep: 0x04000000,
		SearchPaths: []string{},
		CachePath:   defaultCachePath(),
		CacheSize:   64,
		Demangle:    false,
		LogLevel:    "info",
		Verbose:     false,
		LogJSON:     false,
	}
}

// defaultCachePath returns ~/.binlift/cache/images.msgpack
func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".binlift", "cache", "images.msgpack")
	}
	return filepath.Join(home, ".binlift", "cache", "images.msgpack")
}

// GlobalConfigFilePath returns the global config file path (~/.binlift/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".binlift/config.yaml"
	}
	return filepath.Join(home, ".binlift", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.binlift/config.yaml)
func ProjectConfigFilePath() string {
	return ".binlift/config.yaml"
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.binlift/config.yaml)
// 3. Global config (~/.binlift/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalConfigFilePath(), ProjectConfigFilePath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BINLIFT_LIB_BASE"); v != "" {
		if u := parseUint(v); u > 0 {
			cfg.LibBase = u
		}
	}
	if v := os.Getenv("BINLIFT_LIB_BASE_STEP"); v != "" {
		if u := parseUint(v); u > 0 {
			cfg.LibBaseStep = u
		}
	}
	if v := os.Getenv("BINLIFT_SEARCH_PATHS"); v != "" {
		cfg.SearchPaths = filepath.SplitList(v)
	}
	if v := os.Getenv("BINLIFT_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("BINLIFT_CACHE_SIZE"); v != "" {
		if i := parseInt(v); i >= 0 {
			cfg.CacheSize = i
		}
	}
	if v := os.Getenv("BINLIFT_CACHE_MAX_BYTES"); v != "" {
		if u := parseUint(v); u > 0 {
			cfg.CacheMaxBytes = int64(u)
		}
	}
	if v := os.Getenv("BINLIFT_MAX_SEGMENT_SIZE"); v != "" {
		if u := parseUint(v); u > 0 {
			cfg.MaxSegmentSize = u
		}
	}
	if v := os.Getenv("BINLIFT_DEMANGLE"); v != "" {
		cfg.Demangle = parseBool(v)
	}
	if v := os.Getenv("BINLIFT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BINLIFT_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
	if v := os.Getenv("BINLIFT_LOG_JSON"); v != "" {
		cfg.LogJSON = parseBool(v)
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.LibBaseStep == 0 {
		return fmt.Errorf("lib_base_step must be positive")
	}
	if c.LibBase+c.LibBaseStep < c.LibBase {
		return fmt.Errorf("lib_base 0x%x leaves no room for lib_base_step 0x%x", c.LibBase, c.LibBaseStep)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative")
	}
	if c.CacheMaxBytes < 0 {
		return fmt.Errorf("cache_max_bytes must be non-negative")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	for _, p := range c.SearchPaths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("search_paths must not contain empty entries")
		}
	}
	return nil
}

// Level returns the effective log level.
func (c *Config) Level() log.Level {
	if c.Verbose {
		return log.DebugLevel
	}
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// CacheEnabled reports whether the file image cache should be used.
func (c *Config) CacheEnabled() bool {
	return c.CacheSize > 0 && c.CachePath != ""
}

// parseUint parses decimal or 0x-prefixed hexadecimal
func parseUint(s string) uint64 {
	var u uint64
	format := "%d"
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		format = "%x"
	}
	if _, err := fmt.Sscanf(s, format, &u); err != nil {
		return 0
	}
	return u
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return -1
	}
	return i
}

func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}
