package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./db"
	}
	if cfg.Storage.MetadataBackend == "" {
		cfg.Storage.MetadataBackend = "json"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hashing"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 5
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Index.Compression == "" {
		cfg.Index.Compression = "none"
	}
	if cfg.Index.DefaultDimension == 0 {
		cfg.Index.DefaultDimension = 768
	}
	if cfg.Store.ExcerptLength == 0 {
		cfg.Store.ExcerptLength = 200
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 5
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Chain.MaxIter == 0 {
		cfg.Chain.MaxIter = 10
	}
	if cfg.Chain.Tol == 0 {
		cfg.Chain.Tol = 1e-3
	}
	if cfg.Ingest.Includes == nil {
		cfg.Ingest.Includes = []string{"*.txt"}
	}
	if cfg.Ingest.MaxFileBytes == 0 {
		cfg.Ingest.MaxFileBytes = 32 << 20
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Watch.Includes == nil {
		cfg.Watch.Includes = []string{"**/*.txt"}
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
