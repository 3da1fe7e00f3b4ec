package config

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/catalogix/internal/domain/collection"
)

func validConfig() Config {
	cfg := Config{
		HTTP:      HTTPConfig{Port: 8080},
		Embedding: EmbeddingConfig{Endpoint: "https://api.example.com/v1/"},
		VectorDB: VectorDBConfig{
			URL:       "redis://localhost:6379",
			Dimension: 768,
		},
		Products: ProductsConfig{Driver: ProductsSQLite, DSN: "file::memory:"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantMsg string
	}{
		{"invalid port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"missing endpoint", func(c *Config) { c.Embedding.Endpoint = "" }, "embedding.endpoint"},
		{"missing url", func(c *Config) { c.VectorDB.URL = "" }, "vector_db.url"},
		{"unknown driver", func(c *Config) { c.VectorDB.Driver = "milvus" }, "vector_db.driver"},
		{"zero dimension", func(c *Config) { c.VectorDB.Dimension = 0 }, "dimension"},
		{"bad metric", func(c *Config) { c.VectorDB.Metric = "euclid" }, "vector_db.metric"},
		{"bad collection", func(c *Config) { c.VectorDB.Collection = "my products" }, "vector_db"},
		{"delay order", func(c *Config) { c.Retry.BaseDelayMs = 10000; c.Retry.MaxDelayMs = 100 }, "retry.base_delay_ms"},
		{"top k order", func(c *Config) { c.Search.TopKDefault = 500 }, "search.top_k_default"},
		{"min score", func(c *Config) { c.Search.MinScore = 2 }, "search.min_score"},
		{"products driver", func(c *Config) { c.Products.Driver = "mysql" }, "products.driver"},
		{"products dsn", func(c *Config) { c.Products.DSN = "" }, "products.dsn"},
		{"products table", func(c *Config) { c.Products.Table = "products; drop" }, "products.table"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tc.wantMsg)
			}
		})
	}
}

func TestValidate_MemoryDriverNeedsNoURL(t *testing.T) {
	cfg := validConfig()
	cfg.VectorDB.Driver = DriverMemory
	cfg.VectorDB.URL = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.VectorDB.Driver != DriverValkey {
		t.Errorf("expected driver valkey, got %q", cfg.VectorDB.Driver)
	}
	if cfg.VectorDB.Collection != "products" {
		t.Errorf("expected collection products, got %q", cfg.VectorDB.Collection)
	}
	if cfg.Metric() != collection.MetricCosine {
		t.Errorf("expected cosine, got %q", cfg.Metric())
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts=3, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelayMs != 200 {
		t.Errorf("expected BaseDelayMs=200, got %d", cfg.Retry.BaseDelayMs)
	}
	if cfg.Search.TopKDefault != 10 {
		t.Errorf("expected TopKDefault=10, got %d", cfg.Search.TopKDefault)
	}
	if cfg.Indexing.ReconcileIntervalSec != 0 {
		t.Errorf("expected reconcile disabled, got %d", cfg.Indexing.ReconcileIntervalSec)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 30},
		VectorDB: VectorDBConfig{Driver: DriverQdrant, Metric: "dot", HNSWM: 32},
		Retry:    RetryConfig{MaxAttempts: 7},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.VectorDB.Driver != DriverQdrant {
		t.Errorf("expected qdrant, got %q", cfg.VectorDB.Driver)
	}
	if cfg.Metric() != collection.MetricDot {
		t.Errorf("expected dot, got %q", cfg.Metric())
	}
	if cfg.Retry.MaxAttempts != 7 {
		t.Errorf("expected MaxAttempts=7, got %d", cfg.Retry.MaxAttempts)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("CATALOGIX_TEST_DIM", "512")
	data := []byte(`
http:
  port: 9000
embedding:
  endpoint: http://localhost:11434/v1/
vector_db:
  driver: memory
  dimension: ${CATALOGIX_TEST_DIM}
  metric: ${CATALOGIX_TEST_METRIC:-dot}
products:
  driver: sqlite
  dsn: file::memory:
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.VectorDB.Dimension != 512 {
		t.Errorf("expected dimension 512, got %d", cfg.VectorDB.Dimension)
	}
	if cfg.Metric() != collection.MetricDot {
		t.Errorf("expected dot, got %q", cfg.Metric())
	}
}

func TestEmbeddingCacheURL(t *testing.T) {
	cfg := validConfig()
	if got := cfg.EmbeddingCacheURL(); got != cfg.VectorDB.URL {
		t.Errorf("expected vector db url reuse, got %q", got)
	}

	cfg.VectorDB.Driver = DriverQdrant
	if got := cfg.EmbeddingCacheURL(); got != "" {
		t.Errorf("expected cache disabled, got %q", got)
	}

	cfg.Embedding.CacheURL = "redis://cache:6379"
	if got := cfg.EmbeddingCacheURL(); got != "redis://cache:6379" {
		t.Errorf("expected explicit cache url, got %q", got)
	}
}
