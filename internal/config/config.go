// Package config provides configuration loading and structs for kusari.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Store     StoreConfig     `yaml:"store"`
	Search    SearchConfig    `yaml:"search"`
	Chain     ChainConfig     `yaml:"chain"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Server    ServerConfig    `yaml:"server"`
	Watch     WatchConfig     `yaml:"watch"`
}

// StorageConfig holds the on-disk layout. Empty paths are derived from DataDir.
type StorageConfig struct {
	DataDir          string `yaml:"data_dir"`
	MetadataBackend  string `yaml:"metadata_backend"` // json or sqlite
	MetadataPath     string `yaml:"metadata_path"`
	SQLitePath       string `yaml:"sqlite_path"`
	IndexPath        string `yaml:"index_path"`
	EmbeddingsDir    string `yaml:"embeddings_dir"`
	EmbedCachePath   string `yaml:"embed_cache_path"`
	LexicalIndexPath string `yaml:"lexical_index_path"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // hashing, mock, onnx, openai
	ModelPath         string        `yaml:"model_path"`
	OutputName        string        `yaml:"output_name"` // onnx model output
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Dimensions        int           `yaml:"dimensions"`
	MaxTokens         int           `yaml:"max_tokens"`
	CacheSize         int           `yaml:"cache_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// IndexConfig holds similarity index settings.
type IndexConfig struct {
	Compression      string `yaml:"compression"` // none, zstd, lz4
	DefaultDimension int    `yaml:"default_dimension"`
}

// StoreConfig holds vector store settings.
type StoreConfig struct {
	ExcerptLength      int  `yaml:"excerpt_length"`
	RebuildFromVectors bool `yaml:"rebuild_from_vectors"`
}

// SearchConfig holds search settings.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
}

// ChainConfig holds the default chain walk bounds.
type ChainConfig struct {
	MaxIter int     `yaml:"max_iter"`
	Tol     float64 `yaml:"tol"`
}

// IngestConfig controls how files and directories become items.
type IngestConfig struct {
	Includes     []string `yaml:"includes"` // doublestar patterns, relative to the directory
	Excludes     []string `yaml:"excludes"`
	ChunkWords   int      `yaml:"chunk_words"` // 0 stores a whole file as one item
	ChunkOverlap int      `yaml:"chunk_overlap"`
	MaxFileBytes int64    `yaml:"max_file_bytes"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string      `yaml:"directories"`
	Includes    []string      `yaml:"includes"`
	Excludes    []string      `yaml:"excludes"`
	Recursive   *bool         `yaml:"recursive"`
	Debounce    time.Duration `yaml:"debounce"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults, and expands paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := finish(&cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads path when it exists. A missing file yields the defaults with
// paths resolved against the working directory.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		cfg, err := Load(path)
		if err == nil || !errors.Is(err, fs.ErrNotExist) {
			return cfg, err
		}
	}
	return Default()
}

// Default returns the default configuration resolved against the working directory.
func Default() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	var cfg Config
	if err := finish(&cfg, cwd); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func finish(cfg *Config, baseDir string) error {
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return err
	}
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, baseDir)
	cfg.Storage.MetadataPath = derivePath(cfg.Storage.MetadataPath, cfg.Storage.DataDir, "problems.json", baseDir)
	cfg.Storage.SQLitePath = derivePath(cfg.Storage.SQLitePath, cfg.Storage.DataDir, "problems.db", baseDir)
	cfg.Storage.IndexPath = derivePath(cfg.Storage.IndexPath, cfg.Storage.DataDir, "vectors.index", baseDir)
	cfg.Storage.EmbeddingsDir = derivePath(cfg.Storage.EmbeddingsDir, cfg.Storage.DataDir, "embeddings", baseDir)
	cfg.Storage.EmbedCachePath = derivePath(cfg.Storage.EmbedCachePath, cfg.Storage.DataDir, "embed-cache.db", baseDir)
	cfg.Storage.LexicalIndexPath = derivePath(cfg.Storage.LexicalIndexPath, cfg.Storage.DataDir, "lexical", baseDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, baseDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], baseDir)
	}
	return nil
}

// Validate checks enumerated settings.
func Validate(cfg *Config) error {
	switch cfg.Storage.MetadataBackend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("unknown metadata backend: %s (supported: json, sqlite)", cfg.Storage.MetadataBackend)
	}
	switch cfg.Embedding.Provider {
	case "hashing", "mock", "onnx", "openai":
	default:
		return fmt.Errorf("unknown embedding provider: %s (supported: hashing, mock, onnx, openai)", cfg.Embedding.Provider)
	}
	switch strings.ToLower(cfg.Index.Compression) {
	case "none", "zstd", "lz4":
	default:
		return fmt.Errorf("unknown index compression: %s (supported: none, zstd, lz4)", cfg.Index.Compression)
	}
	if cfg.Ingest.ChunkWords < 0 || cfg.Ingest.ChunkOverlap < 0 {
		return fmt.Errorf("ingest chunk sizes must not be negative")
	}
	if cfg.Ingest.ChunkWords > 0 && cfg.Ingest.ChunkOverlap >= cfg.Ingest.ChunkWords {
		return fmt.Errorf("ingest chunk_overlap must be smaller than chunk_words")
	}
	if cfg.Chain.Tol < 0 {
		return fmt.Errorf("chain tol must not be negative")
	}
	return nil
}

// Save writes the config to path. Used for persisting watch directory changes.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func derivePath(path, dataDir, name, baseDir string) string {
	if path == "" {
		return filepath.Join(dataDir, name)
	}
	return expandPath(path, baseDir)
}

// expandPath converts a path to absolute. Paths starting with "./" (or bare relative
// names like "data") are relative to baseDir; "~/" paths are relative to the home directory.
func expandPath(path string, baseDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return filepath.Join(baseDir, path)
}
