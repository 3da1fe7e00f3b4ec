package pgvector

import (
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kailas-cloud/catalogix/internal/domain/collection"
)

type statement struct {
	sql  string
	args []any
}

var selectCollectionSQL = `SELECT name, version, dimension, metric, created_at FROM ` + metaTable + ` WHERE physical_name = $1`

func ensureStatements(col collection.Collection) []statement {
	table := tableName(col)
	ops := "vector_cosine_ops"
	if col.Metric() == collection.MetricDot {
		ops = "vector_ip_ops"
	}
	return []statement{
		{sql: `CREATE EXTENSION IF NOT EXISTS vector`},
		{sql: `CREATE TABLE IF NOT EXISTS ` + metaTable + ` (
			physical_name TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			version       INTEGER NOT NULL,
			dimension     INTEGER NOT NULL,
			metric        TEXT NOT NULL,
			created_at    BIGINT NOT NULL
		)`},
		{
			sql: `INSERT INTO ` + metaTable + ` (physical_name, name, version, dimension, metric, created_at)
				VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (physical_name) DO NOTHING`,
			args: []any{col.PhysicalName(), col.Name(), col.Version(), col.Dimension(), string(col.Metric()), col.CreatedAt()},
		},
		{sql: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id        TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			payload   JSONB NOT NULL DEFAULT '{}',
			seq       BIGSERIAL
		)`, table, col.Dimension())},
		{sql: fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding %s)`,
			indexIdent(col), table, ops)},
	}
}

func upsertSQL(col collection.Collection) string {
	return `INSERT INTO ` + tableName(col) + ` (id, embedding, payload) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload`
}

// searchSQL returns similarity as score: 1 - cosine distance, or the inner product.
func searchSQL(col collection.Collection) string {
	if col.Metric() == collection.MetricDot {
		return `SELECT id, payload, seq, -(embedding <#> $1) AS score FROM ` + tableName(col) +
			` ORDER BY embedding <#> $1 LIMIT $2`
	}
	return `SELECT id, payload, seq, 1 - (embedding <=> $1) AS score FROM ` + tableName(col) +
		` ORDER BY embedding <=> $1 LIMIT $2`
}

func deleteSQL(col collection.Collection) string {
	return `DELETE FROM ` + tableName(col) + ` WHERE id = $1`
}

func tableName(col collection.Collection) string {
	return pgx.Identifier{"catalogix_" + col.PhysicalName()}.Sanitize()
}

func indexIdent(col collection.Collection) string {
	return pgx.Identifier{"catalogix_" + col.PhysicalName() + "_hnsw"}.Sanitize()
}

func scanCollection(row *sql.Row) (collection.Collection, error) {
	var (
		name      string
		version   int
		dim       int
		metric    string
		createdAt int64
	)
	if err := row.Scan(&name, &version, &dim, &metric, &createdAt); err != nil {
		return collection.Collection{}, err
	}
	m, err := collection.ParseMetric(metric)
	if err != nil {
		return collection.Collection{}, err
	}
	return collection.Restore(name, version, dim, m, createdAt), nil
}
