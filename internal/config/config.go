package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/catalogix/internal/domain/collection"
)

// Vector database drivers.
const (
	DriverValkey   = "valkey"
	DriverRedis    = "redis"
	DriverQdrant   = "qdrant"
	DriverPGVector = "pgvector"
	DriverMemory   = "memory"
)

// Product store drivers.
const (
	ProductsPostgres = "postgres"
	ProductsSQLite   = "sqlite"
)

// Config holds the catalogix service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	VectorDB  VectorDBConfig  `yaml:"vector_db"`
	Retry     RetryConfig     `yaml:"retry"`
	Search    SearchConfig    `yaml:"search"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Products  ProductsConfig  `yaml:"products"`
	Documents DocumentsConfig `yaml:"documents"`
	Debug     DebugConfig     `yaml:"debug"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Endpoint          string  `yaml:"endpoint"`
	APIKey            string  `yaml:"api_key"`
	Model             string  `yaml:"model"`
	MaxInputTokens    int     `yaml:"max_input_tokens"`
	BatchSize         int     `yaml:"batch_size"`
	TimeoutMs         int     `yaml:"timeout_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 = без ограничения
	QueryInstruction  string  `yaml:"query_instruction"`
	CacheURL          string  `yaml:"cache_url"` // empty: reuse vector_db.url for valkey/redis
	CacheTTLSec       int     `yaml:"cache_ttl_sec"`
}

// VectorDBConfig holds vector database settings.
type VectorDBConfig struct {
	Driver              string `yaml:"driver"` // valkey, redis, qdrant, pgvector, memory (default: valkey)
	URL                 string `yaml:"url"`
	APIKey              string `yaml:"api_key"`
	Collection          string `yaml:"collection"`
	CollectionVersion   int    `yaml:"collection_version"`
	Dimension           int    `yaml:"dimension"`
	Metric              string `yaml:"metric"`
	TimeoutMs           int    `yaml:"timeout_ms"`
	ReadinessTimeoutSec int    `yaml:"readiness_timeout_sec"`
	HNSWM               int    `yaml:"hnsw_m"`
	HNSWEFConstruct     int    `yaml:"hnsw_ef_construction"`
	HNSWEFRuntime       int    `yaml:"hnsw_ef_runtime"` // 0 = server default
}

// RetryConfig holds the backoff policy for transient embedding and index errors.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMs int `yaml:"base_delay_ms"`
	MaxDelayMs  int `yaml:"max_delay_ms"`
}

// SearchConfig holds query settings.
type SearchConfig struct {
	TopKDefault int     `yaml:"top_k_default"`
	MaxTopK     int     `yaml:"max_top_k"`
	MinScore    float64 `yaml:"min_score"`
}

// IndexingConfig holds async indexing settings.
type IndexingConfig struct {
	Workers              int `yaml:"workers"`
	QueueSize            int `yaml:"queue_size"`
	BatchSize            int `yaml:"batch_size"`
	ReconcileIntervalSec int `yaml:"reconcile_interval_sec"` // 0 = disabled
}

// ProductsConfig holds the product record store connection.
type ProductsConfig struct {
	Driver string `yaml:"driver"` // postgres, sqlite
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

// DocumentsConfig holds the blob store location of product documents.
type DocumentsConfig struct {
	BaseURL string `yaml:"base_url"` // file://, mem://, s3://, gs://
}

// DebugConfig holds diagnostics settings.
type DebugConfig struct {
	Gops bool `yaml:"gops"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory, if present, is applied to the process environment first.
func Load(env string) (Config, error) {
	_ = godotenv.Load()

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML with ${VAR} substitution, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.MaxInputTokens <= 0 {
		c.Embedding.MaxInputTokens = 8191
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 64
	}
	if c.Embedding.TimeoutMs <= 0 {
		c.Embedding.TimeoutMs = 10000
	}
	if c.Embedding.CacheTTLSec <= 0 {
		c.Embedding.CacheTTLSec = 7 * 24 * 3600
	}

	if c.VectorDB.Driver == "" {
		c.VectorDB.Driver = DriverValkey
	}
	if c.VectorDB.Collection == "" {
		c.VectorDB.Collection = "products"
	}
	if c.VectorDB.CollectionVersion <= 0 {
		c.VectorDB.CollectionVersion = 1
	}
	if c.VectorDB.Metric == "" {
		c.VectorDB.Metric = string(collection.MetricCosine)
	}
	if c.VectorDB.TimeoutMs <= 0 {
		c.VectorDB.TimeoutMs = 5000
	}
	if c.VectorDB.ReadinessTimeoutSec <= 0 {
		c.VectorDB.ReadinessTimeoutSec = 10
	}
	if c.VectorDB.HNSWM <= 0 {
		c.VectorDB.HNSWM = 16
	}
	if c.VectorDB.HNSWEFConstruct <= 0 {
		c.VectorDB.HNSWEFConstruct = 200
	}
	c.VectorDB.HNSWEFRuntime = max(c.VectorDB.HNSWEFRuntime, 0)

	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelayMs <= 0 {
		c.Retry.BaseDelayMs = 200
	}
	if c.Retry.MaxDelayMs <= 0 {
		c.Retry.MaxDelayMs = 5000
	}

	if c.Search.TopKDefault <= 0 {
		c.Search.TopKDefault = 10
	}
	if c.Search.MaxTopK <= 0 {
		c.Search.MaxTopK = 100
	}

	if c.Indexing.Workers <= 0 {
		c.Indexing.Workers = 4
	}
	if c.Indexing.QueueSize <= 0 {
		c.Indexing.QueueSize = 1024
	}
	if c.Indexing.BatchSize <= 0 {
		c.Indexing.BatchSize = 32
	}

	if c.Products.Driver == "" {
		c.Products.Driver = ProductsPostgres
	}
	if c.Products.Table == "" {
		c.Products.Table = "products"
	}
}

var identRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Embedding.Endpoint == "" {
		return fmt.Errorf("embedding.endpoint is required")
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return fmt.Errorf("embedding.requests_per_second must be >= 0")
	}

	switch c.VectorDB.Driver {
	case DriverValkey, DriverRedis, DriverQdrant, DriverPGVector:
		if c.VectorDB.URL == "" {
			return fmt.Errorf("vector_db.url is required for driver %q", c.VectorDB.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("vector_db.driver must be one of valkey, redis, qdrant, pgvector, memory; got %q", c.VectorDB.Driver)
	}
	if _, err := collection.ParseMetric(c.VectorDB.Metric); err != nil {
		return fmt.Errorf("vector_db.metric: %w", err)
	}
	if _, err := collection.New(c.VectorDB.Collection, c.VectorDB.CollectionVersion, c.VectorDB.Dimension, c.Metric()); err != nil {
		return fmt.Errorf("vector_db: %w", err)
	}

	if c.Retry.BaseDelayMs > c.Retry.MaxDelayMs {
		return fmt.Errorf("retry.base_delay_ms (%d) must not exceed retry.max_delay_ms (%d)",
			c.Retry.BaseDelayMs, c.Retry.MaxDelayMs)
	}

	if c.Search.TopKDefault > c.Search.MaxTopK {
		return fmt.Errorf("search.top_k_default (%d) must not exceed search.max_top_k (%d)",
			c.Search.TopKDefault, c.Search.MaxTopK)
	}
	if c.Search.MinScore < -1 || c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be within [-1, 1], got %v", c.Search.MinScore)
	}
	if c.Indexing.ReconcileIntervalSec < 0 {
		return fmt.Errorf("indexing.reconcile_interval_sec must be >= 0")
	}

	switch c.Products.Driver {
	case ProductsPostgres, ProductsSQLite:
	default:
		return fmt.Errorf("products.driver must be \"postgres\" or \"sqlite\", got %q", c.Products.Driver)
	}
	if c.Products.DSN == "" {
		return fmt.Errorf("products.dsn is required")
	}
	if !identRegex.MatchString(c.Products.Table) {
		return fmt.Errorf("products.table must be a plain SQL identifier, got %q", c.Products.Table)
	}
	return nil
}

// Metric returns the parsed distance metric; invalid values map to "" and fail Validate.
func (c *Config) Metric() collection.Metric {
	m, _ := collection.ParseMetric(c.VectorDB.Metric)
	return m
}

// EmbeddingCacheURL resolves where cached embeddings live. Empty disables the cache.
func (c *Config) EmbeddingCacheURL() string {
	if c.Embedding.CacheURL != "" {
		return c.Embedding.CacheURL
	}
	if c.VectorDB.Driver == DriverValkey || c.VectorDB.Driver == DriverRedis {
		return c.VectorDB.URL
	}
	return ""
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
