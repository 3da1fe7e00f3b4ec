package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogix/internal/config"
	dbRedis "github.com/kailas-cloud/catalogix/internal/db/redis"
	"github.com/kailas-cloud/catalogix/internal/domain"
	domcol "github.com/kailas-cloud/catalogix/internal/domain/collection"
	"github.com/kailas-cloud/catalogix/internal/extract"
	"github.com/kailas-cloud/catalogix/internal/metrics"
	"github.com/kailas-cloud/catalogix/internal/repository/blob"
	"github.com/kailas-cloud/catalogix/internal/repository/embcache"
	"github.com/kailas-cloud/catalogix/internal/repository/memindex"
	"github.com/kailas-cloud/catalogix/internal/repository/pgvector"
	productrepo "github.com/kailas-cloud/catalogix/internal/repository/product"
	"github.com/kailas-cloud/catalogix/internal/repository/vectorindex"
	"github.com/kailas-cloud/catalogix/internal/retry"
	openaiEmb "github.com/kailas-cloud/catalogix/internal/transport/openai"
	"github.com/kailas-cloud/catalogix/internal/transport/qdrant"
	"github.com/kailas-cloud/catalogix/internal/usecase/catalog"
	collectionuc "github.com/kailas-cloud/catalogix/internal/usecase/collection"
	embeddinguc "github.com/kailas-cloud/catalogix/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/catalogix/internal/usecase/health"
)

// app is the composition root shared by serve and the maintenance commands.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	index      domain.VectorIndex
	indexPing  healthuc.CheckFunc
	products   *productrepo.Repo
	documents  *blob.Store
	provider   *embeddinguc.InstrumentedEmbedder
	collection *collectionuc.Service
	catalog    *catalog.Service

	closers []func()
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// Explicit registration, no init()
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()
	metrics.RegisterHTTPMetrics()

	col, err := domcol.New(cfg.VectorDB.Collection, cfg.VectorDB.CollectionVersion, cfg.VectorDB.Dimension, cfg.Metric())
	if err != nil {
		return nil, fmt.Errorf("collection config: %w", err)
	}

	vectorStore, err := a.buildIndex(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("Vector index ready",
		zap.String("driver", cfg.VectorDB.Driver),
		zap.String("collection", col.PhysicalName()),
		zap.Int("dimension", col.Dimension()),
		zap.String("metric", string(col.Metric())),
	)

	if err := a.buildProducts(ctx); err != nil {
		return nil, err
	}
	a.documents = blob.NewDefault(cfg.Documents.BaseURL)

	gen, err := a.buildEmbedder(ctx, vectorStore)
	if err != nil {
		return nil, err
	}

	policy := retryPolicy(cfg.Retry)
	a.collection = collectionuc.New(a.index, col, logger).WithRetry(policy)
	a.catalog = catalog.New(a.products, a.documents, extract.New(), gen, a.index, catalog.Config{
		Collection:  col.PhysicalName(),
		Dimension:   col.Dimension(),
		Model:       cfg.Embedding.Model,
		TopKDefault: cfg.Search.TopKDefault,
		MaxTopK:     cfg.Search.MaxTopK,
		MinScore:    cfg.Search.MinScore,
		BatchSize:   cfg.Indexing.BatchSize,
		Retry:       policy,
	}, logger)
	return a, nil
}

// buildIndex selects the vector database backend. For valkey/redis it also returns
// the underlying store so the embedding cache can share the connection.
func (a *app) buildIndex(ctx context.Context) (*dbRedis.Store, error) {
	vc := a.cfg.VectorDB
	timeout := time.Duration(vc.TimeoutMs) * time.Millisecond

	switch vc.Driver {
	case config.DriverValkey, config.DriverRedis:
		store, err := dbRedis.NewStore(dbRedis.Config{URL: vc.URL, Password: vc.APIKey, Timeout: timeout})
		if err != nil {
			return nil, fmt.Errorf("create %s store: %w", vc.Driver, err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.WaitForReady(ctx, time.Duration(vc.ReadinessTimeoutSec)*time.Second); err != nil {
			return nil, fmt.Errorf("%s not ready: %w", vc.Driver, err)
		}
		repo := vectorindex.New(store, vc.CollectionVersion).
			WithHNSW(vectorindex.HNSWConfig{
				M:           vc.HNSWM,
				EFConstruct: vc.HNSWEFConstruct,
				EFRuntime:   vc.HNSWEFRuntime,
			}).
			WithTimeout(timeout).
			WithBackend(vc.Driver)
		a.index, a.indexPing = repo, repo.Ping
		return store, nil

	case config.DriverQdrant:
		client := qdrant.New(qdrant.Config{
			URL:            vc.URL,
			APIKey:         vc.APIKey,
			Version:        vc.CollectionVersion,
			Timeout:        timeout,
			HNSWM:          vc.HNSWM,
			EfConstruction: vc.HNSWEFConstruct,
			EfSearch:       vc.HNSWEFRuntime,
		})
		a.index, a.indexPing = client, client.Ping
		return nil, nil

	case config.DriverPGVector:
		conn, err := pgvector.Open(vc.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		repo := pgvector.New(conn, vc.CollectionVersion).WithTimeout(timeout)
		a.index, a.indexPing = repo, repo.Ping
		return nil, nil

	case config.DriverMemory:
		a.logger.Warn("Using in-memory vector index, records are lost on restart")
		a.index = memindex.New()
		return nil, nil
	}
	return nil, fmt.Errorf("unknown vector_db.driver %q", vc.Driver)
}

func (a *app) buildProducts(ctx context.Context) error {
	pc := a.cfg.Products
	dialect := productrepo.Postgres
	if pc.Driver == config.ProductsSQLite {
		dialect = productrepo.SQLite
	}
	conn, err := productrepo.Open(dialect, pc.DSN)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = conn.Close() })

	a.products = productrepo.New(conn, dialect, pc.Table)
	if err := a.products.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate product store: %w", err)
	}
	return nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Generator.
func (a *app) buildEmbedder(ctx context.Context, vectorStore *dbRedis.Store) (*embeddinguc.Generator, error) {
	ec := a.cfg.Embedding

	// Base provider (with transport metrics built-in)
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     ec.APIKey,
		BaseURL:    ec.Endpoint,
		Model:      ec.Model,
		Dimensions: a.cfg.VectorDB.Dimension,
		Provider:   "openai",
		Logger:     a.logger,
	})

	var embedder domain.Embedder = base
	cacheStore, err := a.cacheStore(ctx, vectorStore)
	if err != nil {
		return nil, err
	}
	if cacheStore != nil {
		embedder = embcache.New(base, cacheStore, ec.Model, a.cfg.VectorDB.Dimension, time.Duration(ec.CacheTTLSec)*time.Second,
			metrics.EmbeddingCacheTotal, a.logger)
	}

	a.provider = embeddinguc.NewInstrumentedEmbedder(embedder, "openai", ec.Model, ec.BatchSize, a.logger)

	return embeddinguc.New(a.provider, a.cfg.VectorDB.Dimension).
		WithMaxInputTokens(ec.MaxInputTokens).
		WithQueryInstruction(ec.QueryInstruction).
		WithTimeout(time.Duration(ec.TimeoutMs) * time.Millisecond).
		WithRetry(retryPolicy(a.cfg.Retry)).
		WithRateLimit(ec.RequestsPerSecond).
		WithLogger(a.logger), nil
}

func (a *app) cacheStore(ctx context.Context, vectorStore *dbRedis.Store) (*dbRedis.Store, error) {
	url := a.cfg.EmbeddingCacheURL()
	switch {
	case url == "":
		return nil, nil
	case vectorStore != nil && url == a.cfg.VectorDB.URL:
		return vectorStore, nil
	}

	store, err := dbRedis.NewStore(dbRedis.Config{URL: url})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	if err := store.WaitForReady(ctx, time.Duration(a.cfg.VectorDB.ReadinessTimeoutSec)*time.Second); err != nil {
		return nil, fmt.Errorf("embedding cache not ready: %w", err)
	}
	return store, nil
}

// health builds the named component checks. The vector database and the product
// store are critical; the embedding provider and blob store only degrade the service.
func (a *app) health() *healthuc.Service {
	return healthuc.New(3*time.Second).
		WithCheck("vector_db", true, a.indexPing).
		WithCheck("products", true, healthuc.PingCheck(a.products)).
		WithCheck("embedding", false, healthuc.EmbeddingCheck(a.provider)).
		WithCheck("documents", false, healthuc.PingCheck(a.documents))
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}

func retryPolicy(rc config.RetryConfig) retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = rc.MaxAttempts
	p.BaseDelay = time.Duration(rc.BaseDelayMs) * time.Millisecond
	p.MaxDelay = time.Duration(rc.MaxDelayMs) * time.Millisecond
	return p
}
