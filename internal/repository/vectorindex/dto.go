package vectorindex

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/catalogix/internal/db"
	"github.com/kailas-cloud/catalogix/internal/domain"
	domcol "github.com/kailas-cloud/catalogix/internal/domain/collection"
	"github.com/kailas-cloud/catalogix/internal/domain/record"
)

// Valkey key patterns:
//   catalogix:collection:{physical}  collection metadata hash
//   catalogix:{physical}:{id}        record hash
//   catalogix:{physical}:idx         FT index
//   catalogix:seq:{physical}         insertion counter

func metaKey(physical string) string {
	return fmt.Sprintf("%scollection:%s", domain.KeyPrefix, physical)
}

func indexName(physical string) string {
	return fmt.Sprintf("%s%s:idx", domain.KeyPrefix, physical)
}

func recordPrefix(physical string) string {
	return fmt.Sprintf("%s%s:", domain.KeyPrefix, physical)
}

func recordKey(physical, id string) string {
	return recordPrefix(physical) + id
}

func seqKey(physical string) string {
	return fmt.Sprintf("%sseq:%s", domain.KeyPrefix, physical)
}

func distance(m domcol.Metric) db.DistanceMetric {
	if m == domcol.MetricDot {
		return db.DistanceIP
	}
	return db.DistanceCosine
}

// buildIndex creates the FT index definition for a collection.
func buildIndex(col domcol.Collection, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	physical := col.PhysicalName()
	def := db.Schema(indexName(physical), recordPrefix(physical)).
		Tag(fieldID).
		Numeric(fieldSeq).
		Vector(fieldVector, col.Dimension(), distance(col.Metric()), db.HNSW{M: hnsw.M, EFConstruct: hnsw.EFConstruct})
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// collectionToHash converts a domain Collection to a map for HSET.
func collectionToHash(col domcol.Collection) map[string]string {
	return map[string]string{
		"name":       col.Name(),
		"version":    strconv.Itoa(col.Version()),
		"dimension":  strconv.Itoa(col.Dimension()),
		"metric":     string(col.Metric()),
		"created_at": strconv.FormatInt(col.CreatedAt(), 10),
	}
}

// collectionFromHash hydrates a domain Collection from an HGETALL result map.
func collectionFromHash(m map[string]string) (domcol.Collection, error) {
	version, err := strconv.Atoi(m["version"])
	if err != nil {
		return domcol.Collection{}, fmt.Errorf("invalid version: %w", err)
	}
	dim, err := strconv.Atoi(m["dimension"])
	if err != nil {
		return domcol.Collection{}, fmt.Errorf("invalid dimension: %w", err)
	}
	metric, err := domcol.ParseMetric(m["metric"])
	if err != nil {
		return domcol.Collection{}, err
	}
	createdAt, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return domcol.Collection{}, fmt.Errorf("invalid created_at: %w", err)
	}
	return domcol.Restore(m["name"], version, dim, metric, createdAt), nil
}

func recordToHash(rec record.Record, seq int64) (map[string]string, error) {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return map[string]string{
		fieldID:      rec.ID,
		fieldVector:  string(db.EncodeVector(rec.Vector)),
		fieldPayload: string(payload),
		fieldSeq:     strconv.FormatInt(seq, 10),
	}, nil
}

func entryToRanked(e db.SearchEntry) record.Ranked {
	seq, _ := strconv.ParseInt(e.Fields[fieldSeq], 10, 64)
	return record.Ranked{
		Hit: record.Hit{
			ID:      e.Fields[fieldID],
			Score:   e.Score,
			Payload: decodePayload(e.Fields[fieldPayload]),
		},
		Seq: seq,
	}
}

// decodePayload tolerates a broken payload: the record is still a hit.
func decodePayload(s string) map[string]any {
	if s == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}
