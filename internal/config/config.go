// Package config loads engine configuration from defaults, an optional
// .kestrel.yaml at the repository root, and environment variables, in
// that order of precedence (environment wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables consumed by the engine core.
const (
	EnvCacheMaxMemoryMB = "CACHE_MAX_MEMORY_MB"
	EnvBatchSize        = "BATCH_SIZE"
	EnvMapSizeMB        = "LMDB_MAP_SIZE_MB"
)

// Defaults.
const (
	DefaultCacheMaxMemoryMB = 500
	DefaultMapSizeMB        = 2048
	DefaultDebounceWindow   = 300 * time.Millisecond
)

// Config holds the resolved engine configuration.
type Config struct {
	// ModelDir is the directory holding the embedding model files
	// (model.onnx + tokenizer.json). Empty selects the static embedder.
	ModelDir string `yaml:"model_dir"`

	// RerankModelDir holds the optional cross-encoder model. Empty
	// disables reranking.
	RerankModelDir string `yaml:"rerank_model_dir"`

	// CacheMaxMemoryMB bounds the embedding cache in megabytes.
	CacheMaxMemoryMB int `yaml:"cache_max_memory_mb"`

	// BatchSize overrides the model's embedding batch size. Zero means
	// the embedder picks its own.
	BatchSize int `yaml:"batch_size"`

	// MapSizeMB is the vector store's initial memory-map size in
	// megabytes; the store grows past it as needed.
	MapSizeMB int `yaml:"map_size_mb"`

	// Exclude lists extra ignore patterns layered after the ignore files.
	Exclude []string `yaml:"exclude"`

	// DebounceWindow is the watcher debounce window.
	DebounceWindow time.Duration `yaml:"debounce_window"`

	// LogLevel is the minimum structured log level.
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		CacheMaxMemoryMB: DefaultCacheMaxMemoryMB,
		MapSizeMB:        DefaultMapSizeMB,
		DebounceWindow:   DefaultDebounceWindow,
		LogLevel:         "info",
	}
}

// Load resolves configuration for the repository rooted at root.
func Load(root string) (Config, error) {
	cfg := Default()

	path := filepath.Join(root, ".kestrel.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(&cfg)
	if cfg.CacheMaxMemoryMB <= 0 {
		cfg.CacheMaxMemoryMB = DefaultCacheMaxMemoryMB
	}
	if cfg.MapSizeMB <= 0 {
		cfg.MapSizeMB = DefaultMapSizeMB
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) {
	if v, ok := envInt(EnvCacheMaxMemoryMB); ok {
		cfg.CacheMaxMemoryMB = v
	}
	if v, ok := envInt(EnvBatchSize); ok {
		cfg.BatchSize = v
	}
	if v, ok := envInt(EnvMapSizeMB); ok {
		cfg.MapSizeMB = v
	}
}

func envInt(key string) (int, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
