// Package config handles engine configuration via environment variables
// and an optional YAML file.
//
// All settings carry WORDVEC_-prefixed environment variables.
// Configuration is loaded with LoadFromEnv(), optionally overlaid from
// a YAML file with LoadFile(), and checked with Validate() before use.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	if path := os.Getenv("WORDVEC_CONFIG_FILE"); path != "" {
//		if err := cfg.LoadFile(path); err != nil {
//			log.Fatalf("Invalid config file: %v", err)
//		}
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
// Environment Variables:
//
//   - WORDVEC_MAX_EMBEDDING_FILES=8
//   - WORDVEC_MAX_MEMORY_BYTES=4294967296
//   - WORDVEC_DEFAULT_EMBEDDING_PATH="/data/vectors/default.vec"
//   - WORDVEC_MAX_WORDS_PER_ARTIFACT=0
//   - WORDVEC_NORMALIZE_ON_LOAD=true
//   - WORDVEC_VALIDATE_DIMENSIONS=true
//   - WORDVEC_SKIP_INVALID_WORDS=true
//   - WORDVEC_RESOLVER_POOL_SIZE=16
//   - WORDVEC_RESOLVER_DATA_DIR="./data/mappings"
//   - WORDVEC_LOG_LEVEL="info"
//   - WORDVEC_LOG_FORMAT="text"
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration.
//
// Use LoadFromEnv() to create a Config from environment variables.
type Config struct {
	// Cache settings (path cache limits)
	Cache CacheConfig `yaml:"cache"`

	// Loader settings applied to every artifact load
	Loader LoaderConfig `yaml:"loader"`

	// Resolver settings (mapping store and work pool)
	Resolver ResolverConfig `yaml:"resolver"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// CacheConfig holds path cache limits.
type CacheConfig struct {
	// MaxEmbeddingFiles caps the number of resident artifacts
	MaxEmbeddingFiles int `yaml:"max_embedding_files"`
	// MaxMemoryBytes caps the aggregate resident byte cost
	MaxMemoryBytes int64 `yaml:"max_memory_bytes"`
	// DefaultEmbeddingPath backs collections that resolve to the
	// deployment default. Empty disables default-kind collections.
	DefaultEmbeddingPath string `yaml:"default_embedding_path"`
}

// LoaderConfig holds artifact loading settings.
type LoaderConfig struct {
	// MaxWordsPerArtifact truncates oversized vocabularies (0 = unbounded)
	MaxWordsPerArtifact int `yaml:"max_words_per_artifact"`
	// NormalizeOnLoad divides every vector by its L2 norm at load time
	NormalizeOnLoad bool `yaml:"normalize_on_load"`
	// ValidateDimensions drops rows whose width disagrees with the header
	ValidateDimensions bool `yaml:"validate_dimensions"`
	// SkipInvalidWords drops unusable tokens instead of failing the load
	SkipInvalidWords bool `yaml:"skip_invalid_words"`
}

// ResolverConfig holds collection mapping settings.
type ResolverConfig struct {
	// PoolSize bounds concurrent resolver calls
	PoolSize int `yaml:"pool_size"`
	// DataDir is the badger directory for the mapping store
	DataDir string `yaml:"data_dir"`
	// InMemory keeps mappings in RAM only
	InMemory bool `yaml:"in_memory"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is "text" or "json"
	Format string `yaml:"format"`
}

// LoadFromEnv creates a Config from environment variables, falling
// back to defaults for anything unset.
func LoadFromEnv() *Config {
	return &Config{
		Cache: CacheConfig{
			MaxEmbeddingFiles:    getEnvInt("WORDVEC_MAX_EMBEDDING_FILES", 8),
			MaxMemoryBytes:       getEnvInt64("WORDVEC_MAX_MEMORY_BYTES", 4<<30),
			DefaultEmbeddingPath: getEnv("WORDVEC_DEFAULT_EMBEDDING_PATH", ""),
		},
		Loader: LoaderConfig{
			MaxWordsPerArtifact: getEnvInt("WORDVEC_MAX_WORDS_PER_ARTIFACT", 0),
			NormalizeOnLoad:     getEnvBool("WORDVEC_NORMALIZE_ON_LOAD", false),
			ValidateDimensions:  getEnvBool("WORDVEC_VALIDATE_DIMENSIONS", true),
			SkipInvalidWords:    getEnvBool("WORDVEC_SKIP_INVALID_WORDS", true),
		},
		Resolver: ResolverConfig{
			PoolSize: getEnvInt("WORDVEC_RESOLVER_POOL_SIZE", 16),
			DataDir:  getEnv("WORDVEC_RESOLVER_DATA_DIR", "./data/mappings"),
			InMemory: getEnvBool("WORDVEC_RESOLVER_IN_MEMORY", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("WORDVEC_LOG_LEVEL", "info"),
			Format: getEnv("WORDVEC_LOG_FORMAT", "text"),
		},
	}
}

// LoadFile overlays settings from a YAML file onto the receiver.
// Fields absent from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Cache.MaxEmbeddingFiles < 1 {
		return fmt.Errorf("max_embedding_files must be at least 1, got %d", c.Cache.MaxEmbeddingFiles)
	}
	if c.Cache.MaxMemoryBytes < 1 {
		return fmt.Errorf("max_memory_bytes must be positive, got %d", c.Cache.MaxMemoryBytes)
	}
	if c.Loader.MaxWordsPerArtifact < 0 {
		return fmt.Errorf("max_words_per_artifact must not be negative, got %d", c.Loader.MaxWordsPerArtifact)
	}
	if c.Resolver.PoolSize < 1 {
		return fmt.Errorf("resolver pool_size must be at least 1, got %d", c.Resolver.PoolSize)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}
