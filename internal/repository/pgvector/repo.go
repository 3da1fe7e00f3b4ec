// Package pgvector implements domain.VectorIndex on PostgreSQL with the
// pgvector extension. Each collection is its own table with an HNSW index.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	pgv "github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/catalogix/internal/domain"
	"github.com/kailas-cloud/catalogix/internal/domain/collection"
	"github.com/kailas-cloud/catalogix/internal/domain/record"
	"github.com/kailas-cloud/catalogix/internal/metrics"
)

// Compile-time check: Repo implements domain.VectorIndex.
var _ domain.VectorIndex = (*Repo)(nil)

const (
	backend       = "pgvector"
	metaTable     = "catalogix_collections"
	pgUndefinedTb = "42P01"
)

// Repo stores vectors in PostgreSQL.
type Repo struct {
	db      *sql.DB
	version int
	timeout time.Duration

	mu    sync.RWMutex
	known map[string]collection.Collection
}

// Open connects via the pgx database/sql driver.
func Open(dsn string) (*sql.DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return conn, nil
}

// New creates a pgvector repository.
func New(db *sql.DB, version int) *Repo {
	if version < 1 {
		version = 1
	}
	return &Repo{db: db, version: version, known: make(map[string]collection.Collection)}
}

// WithTimeout bounds every call.
func (r *Repo) WithTimeout(d time.Duration) *Repo {
	r.timeout = d
	return r
}

// Ping checks the connection for the health service.
func (r *Repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// EnsureCollection creates the extension, metadata row, table and HNSW index if absent.
func (r *Repo) EnsureCollection(ctx context.Context, name string, dim int, metric collection.Metric) (err error) {
	defer observe("ensure_collection", time.Now(), &err)
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	col, err := collection.New(name, r.version, dim, metric)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range ensureStatements(col) {
		if _, err := tx.ExecContext(ctx, stmt.sql, stmt.args...); err != nil {
			return unavailable("ensure collection", err)
		}
	}

	// строка могла существовать раньше с другими параметрами
	stored, err := scanCollection(tx.QueryRowContext(ctx, selectCollectionSQL, col.PhysicalName()))
	if err != nil {
		return unavailable("read collection", err)
	}
	if err := compatible(stored, dim, metric); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}

	r.remember(stored)
	return nil
}

// Upsert inserts or overwrites the row for rec.ID. The seq column keeps the first insertion order.
func (r *Repo) Upsert(ctx context.Context, name string, rec record.Record) (err error) {
	defer observe("upsert", time.Now(), &err)
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	col, err := r.collection(ctx, name)
	if err != nil {
		return err
	}
	if len(rec.Vector) != col.Dimension() {
		return domain.NewDimensionMismatch(col.Dimension(), len(rec.Vector))
	}

	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, upsertSQL(col), rec.ID, pgv.NewVector(rec.Vector), payload)
	if err != nil {
		return r.mapErr(col, "upsert", err)
	}
	return nil
}

// Search orders by the metric's distance operator and re-ranks ties by seq.
func (r *Repo) Search(ctx context.Context, name string, vector []float32, topK int) (hits []record.Hit, err error) {
	defer observe("search", time.Now(), &err)
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d: %w", topK, domain.ErrInvalidArgument)
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	col, err := r.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(vector) != col.Dimension() {
		return nil, domain.NewDimensionMismatch(col.Dimension(), len(vector))
	}

	rows, err := r.db.QueryContext(ctx, searchSQL(col), pgv.NewVector(vector), topK+max(topK/2, 10))
	if err != nil {
		return nil, r.mapErr(col, "search", err)
	}
	defer func() { _ = rows.Close() }()

	var ranked []record.Ranked
	for rows.Next() {
		var (
			item    record.Ranked
			payload []byte
		)
		if err := rows.Scan(&item.ID, &payload, &item.Seq, &item.Score); err != nil {
			return nil, unavailable("scan", err)
		}
		item.Payload = map[string]any{}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &item.Payload)
		}
		ranked = append(ranked, item)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapErr(col, "search", err)
	}
	return record.Rank(ranked, topK), nil
}

// Delete removes the row. A missing id is not an error.
func (r *Repo) Delete(ctx context.Context, name, id string) (err error) {
	defer observe("delete", time.Now(), &err)
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	col, err := r.collection(ctx, name)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, deleteSQL(col), id); err != nil {
		return r.mapErr(col, "delete", err)
	}
	return nil
}

func (r *Repo) collection(ctx context.Context, name string) (collection.Collection, error) {
	physical := fmt.Sprintf("%s_v%d", name, r.version)

	r.mu.RLock()
	col, ok := r.known[physical]
	r.mu.RUnlock()
	if ok {
		return col, nil
	}

	col, err := scanCollection(r.db.QueryRowContext(ctx, selectCollectionSQL, physical))
	if errors.Is(err, sql.ErrNoRows) || isUndefinedTable(err) {
		return collection.Collection{}, fmt.Errorf("collection %s: %w", physical, domain.ErrCollectionNotFound)
	}
	if err != nil {
		return collection.Collection{}, unavailable("read collection", err)
	}
	r.remember(col)
	return col, nil
}

func (r *Repo) remember(col collection.Collection) {
	r.mu.Lock()
	r.known[col.PhysicalName()] = col
	r.mu.Unlock()
}

// mapErr turns a dropped table into ErrCollectionNotFound and forgets the cached metadata.
func (r *Repo) mapErr(col collection.Collection, op string, err error) error {
	if isUndefinedTable(err) {
		r.mu.Lock()
		delete(r.known, col.PhysicalName())
		r.mu.Unlock()
		return fmt.Errorf("collection %s: %w", col.PhysicalName(), domain.ErrCollectionNotFound)
	}
	return unavailable(op, err)
}

func (r *Repo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func compatible(stored collection.Collection, dim int, metric collection.Metric) error {
	if stored.Dimension() != dim {
		return domain.NewDimensionMismatch(stored.Dimension(), dim)
	}
	if stored.Metric() != metric {
		return fmt.Errorf("collection %s uses %s, requested %s: %w",
			stored.PhysicalName(), stored.Metric(), metric, domain.ErrMetricMismatch)
	}
	return nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTb
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("pgvector %s: %w", op, err)
	}
	return fmt.Errorf("pgvector %s: %w: %w", op, domain.ErrIndexUnavailable, err)
}

func observe(op string, start time.Time, err *error) {
	metrics.ObserveIndexOp(backend, op, start, *err)
}
