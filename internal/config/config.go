// Package config provides configuration management for the retrieval core.
// It follows Uber Go Style Guide conventions for struct organization and error handling.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Common configuration errors
var (
	ErrConfigNotFound = errors.New("configuration file not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// ChunkingConfig defines text chunking parameters: targetChunkSize,
// minChunkSize, maxChunkSize, overlapSentences → chunker sizing.
type ChunkingConfig struct {
	TargetChunkSize  int `mapstructure:"target_chunk_size" validate:"required,min=50"`
	MinChunkSize     int `mapstructure:"min_chunk_size" validate:"required,min=1"`
	MaxChunkSize     int `mapstructure:"max_chunk_size" validate:"required,min=100"`
	OverlapSentences int `mapstructure:"overlap_sentences" validate:"min=0"`
}

// Validate checks the chunking configuration and sets defaults.
func (c *ChunkingConfig) Validate() error {
	if c.TargetChunkSize == 0 {
		c.TargetChunkSize = 500
	}
	if c.MinChunkSize == 0 {
		c.MinChunkSize = 60
	}
	if c.MaxChunkSize == 0 {
		c.MaxChunkSize = 750
	}
	if c.OverlapSentences == 0 {
		c.OverlapSentences = 2
	}

	if c.MinChunkSize >= c.MaxChunkSize {
		return fmt.Errorf("%w: min chunk size must be less than max chunk size", ErrInvalidConfig)
	}
	if c.TargetChunkSize > c.MaxChunkSize {
		return fmt.Errorf("%w: target chunk size must be <= max chunk size", ErrInvalidConfig)
	}
	return nil
}

// RetrievalConfig defines hybrid-search scoring parameters: topK,
// rerankTopK, similarityThreshold, bm25Weight, vectorWeight, rrfK,
// pageBoost, refBoost → retrieval scoring.
type RetrievalConfig struct {
	TopK                int     `mapstructure:"top_k" validate:"min=1"`
	RerankTopK          int     `mapstructure:"rerank_top_k" validate:"min=0"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" validate:"min=0.0,max=1.0"`
	BM25Weight          float64 `mapstructure:"bm25_weight" validate:"min=0.0"`
	VectorWeight        float64 `mapstructure:"vector_weight" validate:"min=0.0"`
	RRFConstant         int     `mapstructure:"rrf_k" validate:"min=1"`
	PageBoost           float64 `mapstructure:"page_boost" validate:"min=1.0"`
	RefBoost            float64 `mapstructure:"ref_boost" validate:"min=1.0"`
}

// Validate checks the retrieval configuration and sets defaults.
func (c *RetrievalConfig) Validate() error {
	if c.TopK == 0 {
		c.TopK = 10
	}
	if c.RerankTopK == 0 {
		c.RerankTopK = 5
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.35
	}
	if c.BM25Weight == 0 {
		c.BM25Weight = 0.35
	}
	if c.VectorWeight == 0 {
		c.VectorWeight = 0.65
	}
	if c.RRFConstant == 0 {
		c.RRFConstant = 60
	}
	if c.PageBoost == 0 {
		c.PageBoost = 1.5
	}
	if c.RefBoost == 0 {
		c.RefBoost = 1.3
	}

	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity threshold must be within [0,1]", ErrInvalidConfig)
	}
	if c.RerankTopK > 0 && c.RerankTopK > c.TopK {
		return fmt.Errorf("%w: rerank top k must be <= top k", ErrInvalidConfig)
	}
	return nil
}

// EmbeddingConfig defines embedding throughput and cache sizing:
// embeddingDimension, interBatchPause, batchSize → embedding throughput;
// cacheMaxSize, cacheTTL → cache sizing.
type EmbeddingConfig struct {
	Dimension       int    `mapstructure:"dimension" validate:"required,min=1"`
	Model           string `mapstructure:"model" validate:"required"`
	BatchSize       int    `mapstructure:"batch_size" validate:"min=1"`
	InterBatchPause string `mapstructure:"inter_batch_pause"`
	MaxRetries      int    `mapstructure:"max_retries" validate:"min=0"`
	BaseBackoff     string `mapstructure:"base_backoff"`
	CacheRoot       string `mapstructure:"cache_root"`
	CacheMaxSize    int    `mapstructure:"cache_max_size" validate:"min=1"`
	CacheTTL        string `mapstructure:"cache_ttl"`
}

// Validate checks the embedding configuration and sets defaults.
func (c *EmbeddingConfig) Validate() error {
	if c.Dimension == 0 {
		c.Dimension = 1536
	}
	if c.BatchSize == 0 {
		c.BatchSize = 5
	}
	if c.InterBatchPause == "" {
		c.InterBatchPause = "50ms"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseBackoff == "" {
		c.BaseBackoff = "200ms"
	}
	if c.CacheRoot == "" {
		c.CacheRoot = "./.ragcore-cache"
	}
	if c.CacheMaxSize == 0 {
		c.CacheMaxSize = 10000
	}
	if c.CacheTTL == "" {
		c.CacheTTL = "168h"
	}
	return nil
}

// ContextConfig defines the context builder's token budget:
// maxContextTokens, tokenMultiplier → context sizing.
type ContextConfig struct {
	MaxContextTokens int     `mapstructure:"max_context_tokens" validate:"min=1"`
	TokenMultiplier  float64 `mapstructure:"token_multiplier" validate:"min=0.1"`
}

// Validate checks the context configuration and sets defaults.
func (c *ContextConfig) Validate() error {
	if c.MaxContextTokens == 0 {
		c.MaxContextTokens = 4000
	}
	if c.TokenMultiplier == 0 {
		c.TokenMultiplier = 1.3
	}
	return nil
}

// ServiceConfig holds common configuration for external service clients.
type ServiceConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	APIKey  string `mapstructure:"api_key" validate:"required"`
	Model   string `mapstructure:"model" validate:"required"`
}

// StoreConfig selects and configures the index store backend.
type StoreConfig struct {
	// Backend is "hybrid" (in-process Bleve+HNSW, default) or "postgres".
	Backend    string `mapstructure:"backend"`
	BM25Path   string `mapstructure:"bm25_path"`
	VectorRoot string `mapstructure:"vector_root"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// Validate sets store defaults.
func (c *StoreConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = "hybrid"
	}
	if c.Backend != "hybrid" && c.Backend != "postgres" {
		return fmt.Errorf("%w: store backend must be \"hybrid\" or \"postgres\", got %q", ErrInvalidConfig, c.Backend)
	}
	return nil
}

// Config represents the complete application configuration.
type Config struct {
	Server struct {
		Host string `mapstructure:"host" validate:"required"`
		Port string `mapstructure:"port" validate:"required,numeric"`
	} `mapstructure:"server"`

	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Context   ContextConfig   `mapstructure:"context"`
	Store     StoreConfig     `mapstructure:"store"`

	Services struct {
		Embedding ServiceConfig `mapstructure:"embedding"`
		Reranker  ServiceConfig `mapstructure:"reranker"`
	} `mapstructure:"services"`
}

// Validate performs configuration validation and sets defaults across every
// sub-config.
func (c *Config) Validate() error {
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("chunking config: %w", err)
	}
	if err := c.Retrieval.Validate(); err != nil {
		return fmt.Errorf("retrieval config: %w", err)
	}
	if err := c.Embedding.Validate(); err != nil {
		return fmt.Errorf("embedding config: %w", err)
	}
	if err := c.Context.Validate(); err != nil {
		return fmt.Errorf("context config: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	return nil
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %v", ErrConfigNotFound, err)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults configures sensible default values so an empty config.yaml
// still produces a valid Config.
func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")

	viper.SetDefault("chunking.target_chunk_size", 500)
	viper.SetDefault("chunking.min_chunk_size", 60)
	viper.SetDefault("chunking.max_chunk_size", 750)
	viper.SetDefault("chunking.overlap_sentences", 2)

	viper.SetDefault("retrieval.top_k", 10)
	viper.SetDefault("retrieval.rerank_top_k", 5)
	viper.SetDefault("retrieval.similarity_threshold", 0.35)
	viper.SetDefault("retrieval.bm25_weight", 0.35)
	viper.SetDefault("retrieval.vector_weight", 0.65)
	viper.SetDefault("retrieval.rrf_k", 60)
	viper.SetDefault("retrieval.page_boost", 1.5)
	viper.SetDefault("retrieval.ref_boost", 1.3)

	viper.SetDefault("embedding.dimension", 1536)
	viper.SetDefault("embedding.batch_size", 5)
	viper.SetDefault("embedding.inter_batch_pause", "50ms")
	viper.SetDefault("embedding.max_retries", 3)
	viper.SetDefault("embedding.base_backoff", "200ms")
	viper.SetDefault("embedding.cache_root", "./.ragcore-cache")
	viper.SetDefault("embedding.cache_max_size", 10000)
	viper.SetDefault("embedding.cache_ttl", "168h")

	viper.SetDefault("context.max_context_tokens", 4000)
	viper.SetDefault("context.token_multiplier", 1.3)

	viper.SetDefault("store.backend", "hybrid")
}

// MustLoadConfig loads configuration and panics on failure.
// Use this only in main() or init() functions where failure should be fatal.
func MustLoadConfig(configPath string) *Config {
	config, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return config
}
