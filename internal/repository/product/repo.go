// Package product reads catalog rows owned by the host application and
// writes back the index status columns.
package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/kailas-cloud/catalogix/internal/domain"
	domprod "github.com/kailas-cloud/catalogix/internal/domain/product"
)

const columns = `id, COALESCE(slug, ''), COALESCE(name, ''), COALESCE(description, ''),
	COALESCE(ai_generated, FALSE), COALESCE(document_ref, ''), COALESCE(index_status, 'pending'),
	COALESCE(index_hash, ''), COALESCE(index_error, ''), COALESCE(index_updated_at, 0)`

// Repo is the product record store over database/sql.
type Repo struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// Open opens a connection pool for the given dialect.
func Open(dialect Dialect, dsn string) (*sql.DB, error) {
	conn, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// один писатель, иначе SQLITE_BUSY
		conn.SetMaxOpenConns(1)
	}
	return conn, nil
}

// New creates a product repository over table.
func New(db *sql.DB, dialect Dialect, table string) *Repo {
	if table == "" {
		table = "products"
	}
	return &Repo{db: db, dialect: dialect, table: quoteIdent(table)}
}

// Ping checks the connection for the health service.
func (r *Repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Migrate creates the table for standalone deployments and adds the index status
// columns to an existing host table.
func (r *Repo) Migrate(ctx context.Context) error {
	create := `CREATE TABLE IF NOT EXISTS ` + r.table + ` (
	id TEXT PRIMARY KEY,
	slug TEXT,
	name TEXT,
	description TEXT,
	ai_generated BOOLEAN NOT NULL DEFAULT FALSE,
	document_ref TEXT,
	index_status TEXT NOT NULL DEFAULT 'pending',
	index_hash TEXT,
	index_error TEXT,
	index_updated_at BIGINT
)`
	if _, err := r.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create %s: %w", r.table, err)
	}
	if r.dialect != Postgres {
		return nil
	}

	for _, col := range []string{
		"document_ref TEXT",
		"index_status TEXT NOT NULL DEFAULT 'pending'",
		"index_hash TEXT",
		"index_error TEXT",
		"index_updated_at BIGINT",
	} {
		stmt := `ALTER TABLE ` + r.table + ` ADD COLUMN IF NOT EXISTS ` + col
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("alter %s: %w", r.table, err)
		}
	}
	return nil
}

// Save inserts or replaces the collaborator-owned fields of a product. The index
// columns are left untouched, except that a new document reference clears the
// last indexing error so that the stale sweep picks the product up again.
func (r *Repo) Save(ctx context.Context, p domprod.Product) error {
	q := r.dialect.rebind(`INSERT INTO ` + r.table + ` (id, slug, name, description, ai_generated, document_ref, index_status)
VALUES (?, ?, ?, ?, ?, ?, 'pending')
ON CONFLICT (id) DO UPDATE SET
	slug = excluded.slug,
	name = excluded.name,
	description = excluded.description,
	ai_generated = excluded.ai_generated,
	document_ref = excluded.document_ref,
	index_error = CASE
		WHEN ` + r.table + `.document_ref IS DISTINCT FROM excluded.document_ref THEN NULL
		ELSE ` + r.table + `.index_error
	END`)

	_, err := r.db.ExecContext(ctx, q, p.ID(), p.Slug(), p.Name(), p.Description(), p.AIGenerated(), p.DocumentRef())
	if err != nil {
		return fmt.Errorf("save product %s: %w", p.ID(), err)
	}
	return nil
}

// Get returns one product.
func (r *Repo) Get(ctx context.Context, id string) (domprod.Product, error) {
	q := r.dialect.rebind(`SELECT ` + columns + ` FROM ` + r.table + ` WHERE id = ?`)
	p, err := scanProduct(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domprod.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrProductNotFound)
	}
	if err != nil {
		return domprod.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

// GetMany resolves ids in one query. Unknown ids are absent from the map.
func (r *Repo) GetMany(ctx context.Context, ids []string) (map[string]domprod.Product, error) {
	out := make(map[string]domprod.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := r.dialect.rebind(`SELECT ` + columns + ` FROM ` + r.table + ` WHERE id IN (` + placeholders(len(ids)) + `)`)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID()] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	return out, nil
}

// List pages products by id. The returned cursor is empty on the last page.
func (r *Repo) List(ctx context.Context, f domprod.Filter, cursor string, limit int) ([]domprod.Product, string, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		where []string
		args  []any
	)
	if cursor != "" {
		where = append(where, "id > ?")
		args = append(args, cursor)
	}
	if f.StaleOnly {
		where = append(where, "COALESCE(index_status, 'pending') <> ?")
		args = append(args, string(domprod.StatusIndexed))
	}
	if len(f.SkipErrors) > 0 {
		where = append(where, "COALESCE(index_error, '') NOT IN ("+placeholders(len(f.SkipErrors))+")")
		for _, kind := range f.SkipErrors {
			args = append(args, kind)
		}
	}
	if len(f.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}

	q := `SELECT ` + columns + ` FROM ` + r.table
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY id LIMIT ?`
	args = append(args, limit+1)

	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(q), args...)
	if err != nil {
		return nil, "", fmt.Errorf("list products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]domprod.Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scan product: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("list products: %w", err)
	}

	var next string
	if len(items) > limit {
		items = items[:limit]
		next = items[limit-1].ID()
	}
	return items, next, nil
}

// MarkIndexed records a successful indexing with the fingerprint of the embedded text.
func (r *Repo) MarkIndexed(ctx context.Context, id, hash string) error {
	return r.mark(ctx, id, domprod.StatusIndexed, hash, "")
}

// MarkStale records a failed indexing. The stored hash is cleared so the next event re-indexes.
func (r *Repo) MarkStale(ctx context.Context, id, reason string) error {
	return r.mark(ctx, id, domprod.StatusStale, "", reason)
}

func (r *Repo) mark(ctx context.Context, id string, status domprod.IndexStatus, hash, reason string) error {
	q := r.dialect.rebind(`UPDATE ` + r.table +
		` SET index_status = ?, index_hash = ?, index_error = ?, index_updated_at = ? WHERE id = ?`)

	res, err := r.db.ExecContext(ctx, q, string(status), hash, reason, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", id, status, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("product %s: %w", id, domain.ErrProductNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domprod.Product, error) {
	var (
		id, slug, name, description, documentRef string
		status, hash, indexError                 string
		aiGenerated                              bool
		updatedAt                                int64
	)
	if err := row.Scan(&id, &slug, &name, &description, &aiGenerated, &documentRef,
		&status, &hash, &indexError, &updatedAt); err != nil {
		return domprod.Product{}, err
	}
	return domprod.Restore(id, slug, name, description, aiGenerated, documentRef,
		domprod.IndexStatus(status), hash, indexError, updatedAt), nil
}
