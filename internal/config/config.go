package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/anishgillella/serene-sub003/internal/logger"
)

const envPrefix = "SERENE"

// Config is the application configuration
type Config struct {
	Server      *ServerConfig      `mapstructure:"server"`
	Log         logger.Config      `mapstructure:"log"`
	Database    *DatabaseConfig    `mapstructure:"database"`
	VectorStore *VectorStoreConfig `mapstructure:"vector_store"`
	Storage     *StorageConfig     `mapstructure:"storage"`
	Embedding   *EmbeddingConfig   `mapstructure:"embedding"`
	Rerank      *RerankConfig      `mapstructure:"rerank"`
	Cache       *CacheConfig       `mapstructure:"cache"`
	Context     *ContextConfig     `mapstructure:"context"`
	Chunking    *ChunkingConfig    `mapstructure:"chunking"`
	Ingest      *IngestConfig      `mapstructure:"ingest"`
	Tracing     *TracingConfig     `mapstructure:"tracing"`
}

// ServerConfig is the HTTP listener
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig is the relational store
type DatabaseConfig struct {
	Driver        string `mapstructure:"driver"`
	DSN           string `mapstructure:"dsn"`
	MaxOpenConns  int    `mapstructure:"max_open_conns"`
	MaxIdleConns  int    `mapstructure:"max_idle_conns"`
	AutoMigrate   bool   `mapstructure:"auto_migrate"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// VectorStoreConfig selects and configures the segment index
type VectorStoreConfig struct {
	Engine   string          `mapstructure:"engine"`
	Milvus   *MilvusConfig   `mapstructure:"milvus"`
	Qdrant   *QdrantConfig   `mapstructure:"qdrant"`
	Postgres *PgVectorConfig `mapstructure:"postgres"`
}

type MilvusConfig struct {
	Address    string `mapstructure:"address"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	DBName     string `mapstructure:"db_name"`
	Collection string `mapstructure:"collection"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
	Collection string `mapstructure:"collection"`
}

type PgVectorConfig struct {
	Table string `mapstructure:"table"`
}

// StorageConfig is the object store
type StorageConfig struct {
	Type       string `mapstructure:"type"`
	Endpoint   string `mapstructure:"endpoint"`
	Region     string `mapstructure:"region"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	Bucket     string `mapstructure:"bucket"`
	PathPrefix string `mapstructure:"path_prefix"`
	UseSSL     bool   `mapstructure:"use_ssl"`
	LocalDir   string `mapstructure:"local_dir"`
}

// EmbeddingConfig selects the embedding provider
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// RerankConfig selects the reranker
type RerankConfig struct {
	Provider          string        `mapstructure:"provider"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// CacheConfig selects the session cache backend
type CacheConfig struct {
	Backend        string        `mapstructure:"backend"`
	SessionIdleTTL time.Duration `mapstructure:"session_idle_ttl"`
	SweepSchedule  string        `mapstructure:"sweep_schedule"`
	Redis          *RedisConfig  `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ContextConfig holds the context-build tunables
type ContextConfig struct {
	TopK             int           `mapstructure:"top_k"`
	CandidatePool    int           `mapstructure:"candidate_pool"`
	MinRelevance     float64       `mapstructure:"min_relevance"`
	PrimaryTimeout   time.Duration `mapstructure:"primary_timeout"`
	SecondaryTimeout time.Duration `mapstructure:"secondary_timeout"`
	CalendarTimeout  time.Duration `mapstructure:"calendar_timeout"`
	CalendarLookback time.Duration `mapstructure:"calendar_lookback"`
	CalendarLimit    int           `mapstructure:"calendar_limit"`
	ListPageSize     int           `mapstructure:"list_page_size"`
}

// ChunkingConfig controls transcript and profile chunking
type ChunkingConfig struct {
	Encoding         string `mapstructure:"encoding"`
	ChunkTokens      int    `mapstructure:"chunk_tokens"`
	OverlapTokens    int    `mapstructure:"overlap_tokens"`
	MaxMetadataBytes int    `mapstructure:"max_metadata_bytes"`
}

// IngestConfig controls profile uploads
type IngestConfig struct {
	Workers      int   `mapstructure:"workers"`
	MaxFileBytes int64 `mapstructure:"max_file_bytes"`
}

// TracingConfig selects the span exporter
type TracingConfig struct {
	Exporter    string `mapstructure:"exporter"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("vector_store.engine", "milvus")
	v.SetDefault("vector_store.milvus.address", "localhost:19530")
	v.SetDefault("vector_store.milvus.collection", "serene_segments")
	v.SetDefault("vector_store.qdrant.host", "localhost")
	v.SetDefault("vector_store.qdrant.port", 6334)
	v.SetDefault("vector_store.qdrant.collection", "serene_segments")
	v.SetDefault("vector_store.postgres.table", "segment_embeddings")

	v.SetDefault("storage.type", "s3")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.path_prefix", "serene")
	v.SetDefault("storage.local_dir", "./data/files")

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.batch_size", 64)

	v.SetDefault("rerank.provider", "voyage")
	v.SetDefault("rerank.base_url", "https://api.voyageai.com/v1")
	v.SetDefault("rerank.model", "rerank-2")
	v.SetDefault("rerank.requests_per_second", 5)
	v.SetDefault("rerank.timeout", "2s")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.session_idle_ttl", "2h")
	v.SetDefault("cache.sweep_schedule", "@every 10m")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.prefix", "serene:ctxcache")
	v.SetDefault("cache.redis.ttl", "6h")

	v.SetDefault("context.top_k", 7)
	v.SetDefault("context.candidate_pool", 20)
	v.SetDefault("context.min_relevance", 0)
	v.SetDefault("context.primary_timeout", "10s")
	v.SetDefault("context.secondary_timeout", "3s")
	v.SetDefault("context.calendar_timeout", "1500ms")
	v.SetDefault("context.calendar_lookback", "720h")
	v.SetDefault("context.calendar_limit", 5)
	v.SetDefault("context.list_page_size", 256)

	v.SetDefault("chunking.encoding", "cl100k_base")
	v.SetDefault("chunking.chunk_tokens", 400)
	v.SetDefault("chunking.overlap_tokens", 40)
	v.SetDefault("chunking.max_metadata_bytes", 40000)

	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.max_file_bytes", 5<<20)

	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.service_name", "serene-context")
	v.SetDefault("tracing.insecure", true)
}

// LoadConfig reads the YAML file at path (optional), then .env, then
// SERENE_* environment overrides
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the context build cannot run with
func (c *Config) Validate() error {
	if c.Context == nil || c.Chunking == nil {
		return fmt.Errorf("config: context and chunking sections are required")
	}
	if c.Context.TopK <= 0 {
		return fmt.Errorf("config: context.top_k must be positive, got %d", c.Context.TopK)
	}
	if c.Context.CandidatePool < c.Context.TopK {
		return fmt.Errorf("config: context.candidate_pool (%d) must be >= top_k (%d)",
			c.Context.CandidatePool, c.Context.TopK)
	}
	if c.Context.SecondaryTimeout <= 0 || c.Context.CalendarTimeout <= 0 || c.Context.PrimaryTimeout <= 0 {
		return fmt.Errorf("config: context timeouts must be positive")
	}
	if c.Chunking.ChunkTokens <= 0 || c.Chunking.OverlapTokens < 0 ||
		c.Chunking.OverlapTokens >= c.Chunking.ChunkTokens {
		return fmt.Errorf("config: chunking.overlap_tokens must be in [0, chunk_tokens)")
	}
	return nil
}
