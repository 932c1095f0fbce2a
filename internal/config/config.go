package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/corpusd/internal/logging"
)

// Config is the root configuration for corpusd.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    *logging.Config  `koanf:"logging"`
	Qdrant     QdrantConfig     `koanf:"qdrant"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Sync       SyncConfig       `koanf:"sync"`
	Search     SearchConfig     `koanf:"search"`
	Access     AccessConfig     `koanf:"access"`
	Watermark  WatermarkConfig  `koanf:"watermark"`
	Sources    SourcesConfig    `koanf:"sources"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// QdrantConfig holds vector store connection settings.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	VectorSize uint64 `koanf:"vector_size"`
	UseTLS     bool   `koanf:"use_tls"`
	MaxRetries int    `koanf:"max_retries"`
}

// EmbeddingsConfig holds embedding provider settings.
type EmbeddingsConfig struct {
	Provider      string  `koanf:"provider"`
	Model         string  `koanf:"model"`
	BaseURL       string  `koanf:"base_url"`
	CacheDir      string  `koanf:"cache_dir"`
	RatePerSecond float64 `koanf:"rate_per_second"`
}

// SyncConfig tunes the discovery and indexing pipeline.
type SyncConfig struct {
	// ScanInterval is the period between full per-user scans.
	ScanInterval Duration `koanf:"scan_interval"`
	// StalenessCycles is the number of scan intervals after which an
	// unfinalized placeholder is considered abandoned and removed.
	StalenessCycles int `koanf:"staleness_cycles"`
	// DebounceWindow coalesces bursts of change events for one document.
	DebounceWindow Duration `koanf:"debounce_window"`
	QueueCapacity  int      `koanf:"queue_capacity"`
	Workers        int      `koanf:"workers"`
	// MaxRetries bounds attempts per indexing task before it is dropped.
	MaxRetries int `koanf:"max_retries"`
	// RetryBackoff is the base delay between attempts, doubled each retry.
	RetryBackoff Duration `koanf:"retry_backoff"`
	// RateLimitBackoff replaces RetryBackoff when the embedding provider
	// reports rate limiting.
	RateLimitBackoff Duration `koanf:"rate_limit_backoff"`
	ChunkSize        int      `koanf:"chunk_size"`
	ChunkOverlap     int      `koanf:"chunk_overlap"`
	// Users lists the user IDs covered by periodic scans.
	Users []string `koanf:"users"`
}

// SearchConfig tunes hybrid retrieval.
type SearchConfig struct {
	// Overfetch multiplies the requested limit on each retrieval channel so
	// access filtering can drop hits without starving the final page.
	Overfetch    int `koanf:"overfetch"`
	RRFRankConst int `koanf:"rrf_rank_const"`
	DefaultLimit int `koanf:"default_limit"`
	MaxLimit     int `koanf:"max_limit"`
	// ScoreThresholdRatio drops hits scoring below this fraction of the top
	// fused score. Zero disables the cut.
	ScoreThresholdRatio float64  `koanf:"score_threshold_ratio"`
	AccessCheckTimeout  Duration `koanf:"access_check_timeout"`
}

// AccessConfig tunes the live permission verifier.
type AccessConfig struct {
	CacheTTL  Duration `koanf:"cache_ttl"`
	CacheSize int      `koanf:"cache_size"`
	BatchSize int      `koanf:"batch_size"`
}

// WatermarkConfig holds sync watermark storage settings.
type WatermarkConfig struct {
	Path string `koanf:"path"`
}

// SourcesConfig enables built-in source clients. External application clients
// register through the daemon wiring instead.
type SourcesConfig struct {
	// FileRoot enables the local directory source for file documents. Each
	// user owns the subtree <file_root>/<user_id>/. Empty disables it.
	FileRoot string `koanf:"file_root"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging == nil {
		cfg.Logging = logging.NewDefaultConfig()
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "corpusd_default"
	}
	if cfg.Qdrant.VectorSize == 0 {
		cfg.Qdrant.VectorSize = 384 // bge-small-en-v1.5 dimensions
	}
	if cfg.Qdrant.MaxRetries == 0 {
		cfg.Qdrant.MaxRetries = 3
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "tei"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}

	if cfg.Sync.ScanInterval == 0 {
		cfg.Sync.ScanInterval = Duration(5 * time.Minute)
	}
	if cfg.Sync.StalenessCycles == 0 {
		cfg.Sync.StalenessCycles = 5
	}
	if cfg.Sync.DebounceWindow == 0 {
		cfg.Sync.DebounceWindow = Duration(3 * time.Second)
	}
	if cfg.Sync.QueueCapacity == 0 {
		cfg.Sync.QueueCapacity = 256
	}
	if cfg.Sync.Workers == 0 {
		cfg.Sync.Workers = 4
	}
	if cfg.Sync.MaxRetries == 0 {
		cfg.Sync.MaxRetries = 3
	}
	if cfg.Sync.RetryBackoff == 0 {
		cfg.Sync.RetryBackoff = Duration(time.Second)
	}
	if cfg.Sync.RateLimitBackoff == 0 {
		cfg.Sync.RateLimitBackoff = Duration(10 * time.Second)
	}
	if cfg.Sync.ChunkSize == 0 {
		cfg.Sync.ChunkSize = 1600
	}
	if cfg.Sync.ChunkOverlap == 0 {
		cfg.Sync.ChunkOverlap = 200
	}

	if cfg.Search.Overfetch == 0 {
		cfg.Search.Overfetch = 3
	}
	if cfg.Search.RRFRankConst == 0 {
		cfg.Search.RRFRankConst = 60
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.AccessCheckTimeout == 0 {
		cfg.Search.AccessCheckTimeout = Duration(2 * time.Second)
	}

	if cfg.Access.CacheTTL == 0 {
		cfg.Access.CacheTTL = Duration(15 * time.Second)
	}
	if cfg.Access.CacheSize == 0 {
		cfg.Access.CacheSize = 4096
	}
	if cfg.Access.BatchSize == 0 {
		cfg.Access.BatchSize = 64
	}

	if cfg.Watermark.Path == "" {
		cfg.Watermark.Path = "~/.config/corpusd/watermarks.db"
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return fmt.Errorf("logging: %w", err)
		}
	}
	if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("qdrant port must be 1-65535, got %d", c.Qdrant.Port)
	}
	if c.Embeddings.Provider != "tei" && c.Embeddings.Provider != "fastembed" {
		return fmt.Errorf("embeddings provider must be 'tei' or 'fastembed', got %q", c.Embeddings.Provider)
	}
	if c.Sync.ChunkOverlap < 0 || c.Sync.ChunkOverlap >= c.Sync.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, chunk_size), got %d", c.Sync.ChunkOverlap)
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync workers must be >= 1, got %d", c.Sync.Workers)
	}
	if c.Sync.QueueCapacity < 1 {
		return fmt.Errorf("queue capacity must be >= 1, got %d", c.Sync.QueueCapacity)
	}
	if c.Search.Overfetch < 1 {
		return fmt.Errorf("search overfetch must be >= 1, got %d", c.Search.Overfetch)
	}
	if c.Search.ScoreThresholdRatio < 0 || c.Search.ScoreThresholdRatio > 1 {
		return fmt.Errorf("score threshold ratio must be in [0, 1], got %g", c.Search.ScoreThresholdRatio)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("default limit %d exceeds max limit %d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Access.CacheTTL.Duration() <= 0 {
		return fmt.Errorf("access cache ttl must be > 0")
	}
	if c.Access.BatchSize < 1 {
		return fmt.Errorf("access batch size must be >= 1, got %d", c.Access.BatchSize)
	}
	return nil
}
